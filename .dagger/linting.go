package main

import (
	"context"
	"fmt"

	"dagger/tana-helper/internal/dagger"
)

const golangciLintVersion = "v2.8.0"

// CheckLint runs golangci-lint with the repository defaults.
//
// +check
func (t *TanaHelper) CheckLint(ctx context.Context) (string, error) {
	return t.goContainer("").
		WithExec([]string{
			"go",
			"install",
			fmt.Sprintf("github.com/golangci/golangci-lint/v2/cmd/golangci-lint@%s", golangciLintVersion),
		}).
		WithExec([]string{"golangci-lint", "run", "./..."}).
		Stdout(ctx)
}
