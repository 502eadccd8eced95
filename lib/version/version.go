// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build version information for the SDK and
// its tools.
//
// Release values are injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/heliohq/helio-go/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"

	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// UserAgent returns the value the SDK sends in the User-Agent header
// of every API request, e.g. "helio-go/0.1.0-dev".
func UserAgent() string {
	return "helio-go/" + Version
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Print writes the standard --version output for the named binary to
// stdout.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Info())
}

// Full returns detailed version information including the Go runtime.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
