// Package version holds the build identity of switchyard. The variables are
// set with -ldflags "-X github.com/HerbHall/switchyard/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build is the payload of GET /version.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the running binary's build identity.
func Get() Build {
	return Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("switchyard %s (%s, built %s, %s %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}

// Short returns the bare version, e.g. "0.3.1" or "dev".
func Short() string { return Version }

// UserAgent identifies the poller to device REST APIs.
func UserAgent() string { return "switchyard/" + Version }

// SSHClientVersion is the identification string sent in the SSH handshake.
func SSHClientVersion() string { return "SSH-2.0-switchyard_" + Version }
