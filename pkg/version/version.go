// Package version holds build information for the floorplan binary.
// The values are injected at link time:
//
//	go build -ldflags "-X floorplanner/pkg/version.Version=v0.3.0" ./cmd/floorplan
//
//nolint:gochecknoglobals // ldflags targets must be package-level vars
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the three values the way -version prints them.
func String(program string) string {
	return fmt.Sprintf("%s %s\n  commit: %s\n  built:  %s\n", program, Version, Commit, Date)
}
