package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/tana-helper/internal/dagger"
)

// platforms are built natively (emulated when foreign) since CGO rules out
// plain cross compilation.
var platforms = []dagger.Platform{"linux/amd64", "linux/arm64"}

// Build and return directory of tanahelper binaries
func (t *TanaHelper) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	outputs := dag.Directory()

	for _, platform := range platforms {
		path := string(platform) + "/"

		build := t.goContainer(platform).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path + "tanahelper", "./cli/tanahelper"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (t *TanaHelper) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	pkg := "github.com/papercomputeco/tana-helper/pkg/utils"
	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", pkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", pkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", pkg, time.Now().UTC().Format(time.RFC3339)),
	}

	return t.Build(ctx, strings.Join(ldflags, " "))
}
