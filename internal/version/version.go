// Package version reports the hydra release.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit is set at build time with
// -ldflags "-X github.com/ShayCichocki/hydra/internal/version.Commit=<sha>".
var Commit string

// Get returns the release from the VERSION file, followed by the commit when
// one was stamped into the binary.
func Get() string {
	v := strings.TrimSpace(versionContent)
	if c := strings.TrimSpace(Commit); c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		v += "+" + c
	}
	return v
}
