// Package version provides build-time metadata for the rategate service.
// These variables are populated via -ldflags during the build.
package version

import (
	"fmt"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// Build metadata, set with
//
//	go build -ldflags "-X rategate/internal/version.Version=v1.0.0 \
//	  -X rategate/internal/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X rategate/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "unknown" // semantic version ("v1.0.0") or commit hash
	GitCommit = "unknown"
	BuildDate = "unknown" // ISO 8601 UTC
)

// Info holds all build metadata and runtime information.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

// GetInfo returns build metadata and runtime information. The instance ID and
// hostname are computed on the first call and reused for the process lifetime.
var GetInfo = sync.OnceValue(func() Info {
	return Info{
		Version:    Version,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		InstanceID: uuid.New().String(),
		Hostname:   getHostname(),
	}
})

// getHostname returns the system hostname, fallback to "unknown" on error.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// IsRelease reports whether Version is a semantic version without a
// prerelease suffix. Commit hashes and "unknown" are development builds.
func (i Info) IsRelease() bool {
	v, err := semver.NewVersion(i.Version)
	if err != nil {
		return false
	}
	return v.Prerelease() == ""
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("rategate version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
