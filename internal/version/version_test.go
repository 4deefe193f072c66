package version_test

import (
	"testing"

	"github.com/paveg/finwrangle/internal/version"
	"github.com/stretchr/testify/assert"
)

func withVersion(t *testing.T, v, commit, date string) {
	t.Helper()
	oldV, oldC, oldD := version.Version, version.GitCommit, version.BuildDate
	t.Cleanup(func() {
		version.Version, version.GitCommit, version.BuildDate = oldV, oldC, oldD
	})
	version.Version, version.GitCommit, version.BuildDate = v, commit, date
}

func TestInfo(t *testing.T) {
	withVersion(t, "1.2.0", "abcdef1234567-dirty", "2024-01-02T00:00:00Z")

	info := version.Info()
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "2024-01-02T00:00:00Z", info.BuildDate)
	assert.True(t, info.Dirty)
	assert.NotEmpty(t, info.GoVersion)
}

func TestBuildInfoString(t *testing.T) {
	info := version.BuildInfo{
		Version:   "1.2.0",
		BuildDate: "2024-01-02",
		GitCommit: "abcdef1234567",
		GoVersion: "go1.24.4",
		Main:      version.Module{Path: "github.com/paveg/finwrangle"},
	}
	assert.Equal(t,
		"finwrangle 1.2.0\nBuild Date: 2024-01-02\nGit Commit: abcdef1\nGo Version: go1.24.4\nModule: github.com/paveg/finwrangle\n",
		info.String())

	info = version.BuildInfo{Version: "dev", BuildDate: "unknown", GitCommit: "unknown", GoVersion: "go1.24.4", Dirty: true}
	assert.Equal(t, "finwrangle dev (dirty)\nGo Version: go1.24.4\n", info.String())
}

func TestUserAgentAndRelease(t *testing.T) {
	tests := []struct {
		version string
		release bool
	}{
		{"dev", false},
		{"1.0.0", true},
		{"1.1.0-rc.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			withVersion(t, tt.version, "unknown", "unknown")
			assert.Equal(t, "finwrangle/"+tt.version, version.UserAgent())
			assert.Equal(t, tt.release, version.IsRelease())
		})
	}
}
