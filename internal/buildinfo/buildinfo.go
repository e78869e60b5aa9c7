// Package buildinfo holds version metadata stamped at build time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Set with -ldflags "-X .../buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info returns build and runtime details for the version endpoint and
// the version command.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// Uptime returns the time since process start, truncated to seconds.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// String returns a one-line summary for the startup log.
func String() string {
	return fmt.Sprintf("square15 %s (%s) built %s", Version, GitCommit, BuildTime)
}

// UserAgent is sent on outbound model provider requests.
func UserAgent() string {
	return fmt.Sprintf("Square15/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
