// tana-helper CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/tana-helper/internal/dagger"
)

// TanaHelper is the main module for the tana-helper CI/CD pipeline
type TanaHelper struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new TanaHelper CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", "build", "tmp", ".tana_helper", "*.db"]
	source *dagger.Directory,
) *TanaHelper {
	return &TanaHelper{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container for platform with
// gcc and CGO enabled for the sqlite-vec bindings, and the project source mounted.
func (t *TanaHelper) goContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", t.Source)
}

// Test runs the unit tests via "go test"
//
// +check
func (t *TanaHelper) Test(ctx context.Context) (string, error) {
	return t.goContainer("").
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}
