// Package version exposes build-time version information.
// The variables are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/wandersure/wandersure-api/internal/version.Version=1.2.0 ..."
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time.
var (
	// Version is the semantic version (e.g. "1.2.0").
	Version = "0.0.0-dev"

	// Commit is the git commit SHA the binary was built from.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"
)

// Info holds the resolved build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build info for the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s) built %s", i.Version, i.Commit, i.Date)
}

// Short returns just the semantic version.
func (i Info) Short() string {
	return i.Version
}
