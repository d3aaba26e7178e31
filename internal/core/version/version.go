// Package version provides information about the build of the harvester.
package version

import "fmt"

// BuildInfo holds version information about the build.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are intended to be set at build time using -ldflags.
func Info() BuildInfo {
	// Set via -ldflags "-X 'kaggleharvest/internal/core/version.version=v0.1.0'
	// -X 'kaggleharvest/internal/core/version.commit=abcd' -X 'kaggleharvest/internal/core/version.date=2026-10-18'"
	return BuildInfo{
		Service: "kaggleharvest",
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// String renders the build for --version output
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", b.Version, b.Commit, b.Date)
}

// UserAgent identifies the harvester to the remote API
func (b BuildInfo) UserAgent() string { return b.Service + "/" + b.Version }

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
