// Package version holds build information injected at link time.
package version

import "runtime"

// Set via -ldflags at build time:
//
//	-X github.com/santagram/santagram/version.GitRelease=v1.2.3
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = runtime.Version()
)
