// Package version holds build metadata for remipn. The variables are set
// at link time:
//
//	go build -ldflags "-X github.com/rennerdo30/remipn/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Short returns just the version number.
func Short() string {
	return Version
}

// String returns the version with an abbreviated commit.
func String() string {
	return fmt.Sprintf("remipn %s (%s)", Version, shortCommit())
}

// Full returns String plus build time, Go version and platform.
func Full() string {
	return fmt.Sprintf("%s built %s, %s %s/%s", String(), BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// IsDev reports whether this is an unreleased build.
func IsDev() bool {
	return Version == "dev"
}

// Info is the JSON form served by the daemon API.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns structured version information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func shortCommit() string {
	if len(GitCommit) > 7 && GitCommit != "unknown" {
		return GitCommit[:7]
	}
	return GitCommit
}
