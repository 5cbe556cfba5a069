// Package version holds the build identity stamped in by the linker:
//
//	go build -ldflags "-X github.com/banshee-data/crava/internal/version.Version=v1.2.0 ..."
package version

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build identity for logs and the run database.
func String() string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("crava %s (%s, built %s)", Version, sha, BuildTime)
}
