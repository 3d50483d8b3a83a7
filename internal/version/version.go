// Package version reports the tsxbridge build identity. Release builds set
// the variables below with -ldflags; development builds fall back to the VCS
// stamps the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// These variables are set at build time using -ldflags, e.g.
//
//	-X github.com/conneroisu/tsxbridge/internal/version.Version=v0.4.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildTime is RFC3339.
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Release   bool      `json:"is_release" yaml:"is_release"`
	Dirty     bool      `json:"is_dirty" yaml:"is_dirty"`
}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// GetBuildInfo returns comprehensive build information
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Release:   IsRelease(),
		Dirty:     IsDirty(),
	}
}

// GetVersion returns the application version
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := readBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
		if rev := setting(info, "vcs.revision"); len(rev) >= 7 {
			return "dev-" + rev[:7]
		}
	}
	return "dev"
}

// GetGitCommit returns the git commit hash
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if info, ok := readBuildInfo(); ok {
		if rev := setting(info, "vcs.revision"); rev != "" {
			return rev
		}
	}
	return "unknown"
}

// GetShortVersion returns a short version string suitable for display
func GetShortVersion() string {
	version := GetVersion()
	commit := GetGitCommit()

	if commit == "unknown" || len(commit) < 7 {
		return version
	}
	if strings.HasPrefix(version, "dev") {
		return "dev-" + commit[:7]
	}
	return fmt.Sprintf("%s (%s)", version, commit[:7])
}

// GetDetailedVersion returns a multi-line description of the build.
func GetDetailedVersion() string {
	info := GetBuildInfo()

	lines := []string{"tsxbridge " + info.Version}
	if info.GitCommit != "unknown" {
		commit := info.GitCommit
		if info.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, "commit:   "+commit)
	}
	if !info.BuildTime.IsZero() {
		lines = append(lines, "built:    "+info.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines,
		"go:       "+info.GoVersion,
		"platform: "+info.Platform,
	)
	return strings.Join(lines, "\n")
}

// IsRelease returns true if this is a release build (not dev)
func IsRelease() bool {
	return !strings.HasPrefix(GetVersion(), "dev")
}

// IsDirty returns true if the working directory was dirty when built
func IsDirty() bool {
	if info, ok := readBuildInfo(); ok {
		return setting(info, "vcs.modified") == "true"
	}
	return false
}

func setting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func parseBuildTime(value string) time.Time {
	if value == "" || value == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
