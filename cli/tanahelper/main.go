package main

import (
	"os"

	"github.com/joho/godotenv"

	tanahelpercmder "github.com/papercomputeco/tana-helper/cmd/tanahelper"
)

func main() {
	// A missing .env is fine; the environment and config.toml still apply.
	_ = godotenv.Load()

	cmd := tanahelpercmder.NewTanaHelperCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
