// Package version carries the build identity stamped into the trackd
// binary at link time. Release builds override the defaults with
// -ldflags "-X .../internal/version.Version=v1.2.0" and so on; local
// builds report "dev".
package version

import "fmt"

var (
	// Version is the release version, or "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// String renders the full identity for startup logs.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
