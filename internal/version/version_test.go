package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.2.0", "abc123def456", "2026-08-29T12:00:00Z"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	info := GetInfo()

	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "abc123def456", info.Commit)
	assert.Equal(t, "2026-08-29T12:00:00Z", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.2.0",
		Commit:    "abc123def456",
		Date:      "2026-08-29",
		GoVersion: "go1.24.6",
		Platform:  "linux/amd64",
	}

	got := info.String()
	assert.Contains(t, got, "drover 1.2.0")
	assert.Contains(t, got, "abc123de", "commit hash is abbreviated")
	assert.NotContains(t, got, "abc123def", "full hash is not shown")
	assert.Contains(t, got, "linux/amd64")
}

func TestInfoStringShortCommit(t *testing.T) {
	info := Info{Version: "dev", Commit: "abc123"}
	assert.Contains(t, info.String(), "abc123", "short hashes pass through unchanged")
}

func TestInfoShort(t *testing.T) {
	assert.Equal(t, "1.2.0-rc1", Info{Version: "1.2.0-rc1"}.Short())
	assert.Equal(t, "dev", Info{Version: "dev"}.Short())
}

func TestDefaultValues(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.Date)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
}
