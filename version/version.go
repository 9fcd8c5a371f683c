// Package version exposes build-time version metadata for the mesh binary.
package version

import "fmt"

// These are set at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String returns a human-readable version line.
func String() string {
	return fmt.Sprintf("mesh %s (commit %s, built %s)", Version, Commit, BuildDate)
}
