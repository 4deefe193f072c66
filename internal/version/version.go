// Package version reports build information for the finwrangle binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	unknownValue     = "unknown"
	commitHashLength = 7
)

// Set at build time with -ldflags "-X github.com/paveg/finwrangle/internal/version.Version=...".
var (
	Version   = "dev"
	BuildDate = unknownValue
	GitCommit = unknownValue
	GoVersion = runtime.Version()
)

// BuildInfo contains detailed build information.
type BuildInfo struct {
	Version   string   `json:"version" yaml:"version"`
	BuildDate string   `json:"build_date" yaml:"build_date"`
	GitCommit string   `json:"git_commit" yaml:"git_commit"`
	GoVersion string   `json:"go_version" yaml:"go_version"`
	Dirty     bool     `json:"dirty" yaml:"dirty"`
	Main      Module   `json:"main" yaml:"main"`
	Deps      []Module `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// Module represents a Go module with version information.
type Module struct {
	Path    string `json:"path" yaml:"path"`
	Version string `json:"version" yaml:"version"`
}

// Info returns the linker-provided values completed with the module
// information embedded in the binary.
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: GoVersion,
		Dirty:     strings.HasSuffix(GitCommit, "-dirty"),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Main = Module{Path: bi.Main.Path, Version: bi.Main.Version}
		for _, dep := range bi.Deps {
			info.Deps = append(info.Deps, Module{Path: dep.Path, Version: dep.Version})
		}
		if info.GitCommit == unknownValue {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.GitCommit = s.Value
				case "vcs.modified":
					info.Dirty = s.Value == "true"
				}
			}
		}
	}
	return info
}

// String returns the human readable form printed by "finwrangle version".
func (b BuildInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "finwrangle %s", b.Version)
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteString("\n")

	if b.BuildDate != unknownValue {
		fmt.Fprintf(&sb, "Build Date: %s\n", b.BuildDate)
	}
	if b.GitCommit != unknownValue {
		commit := strings.TrimSuffix(b.GitCommit, "-dirty")
		if len(commit) > commitHashLength {
			commit = commit[:commitHashLength]
		}
		fmt.Fprintf(&sb, "Git Commit: %s\n", commit)
	}
	fmt.Fprintf(&sb, "Go Version: %s\n", b.GoVersion)
	if b.Main.Path != "" {
		fmt.Fprintf(&sb, "Module: %s\n", b.Main.Path)
	}
	return sb.String()
}

// UserAgent is the default User-Agent header for source fetches.
func UserAgent() string {
	return "finwrangle/" + Version
}

// IsRelease reports whether the binary was built from a release tag.
func IsRelease() bool {
	return Version != "dev" && !strings.Contains(Version, "-")
}
