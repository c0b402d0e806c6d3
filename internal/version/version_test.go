package version

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})

	Version = "1.2.3"
	Commit = "abc123def456"
	Date = "2026-08-31T00:00:00Z"

	info := GetInfo()
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123def456", info.Commit)
	assert.Equal(t, "2026-08-31T00:00:00Z", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), info.Platform)
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want []string
	}{
		{
			name: "long commit is truncated to eight characters",
			info: Info{Version: "1.2.3", Commit: "abc123def456", Date: "2026-08-31", GoVersion: "go1.24.6", Platform: "linux/amd64"},
			want: []string{"Storyboard 1.2.3", "(abc123de)", "built 2026-08-31", "go1.24.6", "linux/amd64"},
		},
		{
			name: "short commit passes through",
			info: Info{Version: "1.2.3", Commit: "abc123", Date: "2026-08-31", GoVersion: "go1.24.6", Platform: "darwin/arm64"},
			want: []string{"(abc123)", "darwin/arm64"},
		},
		{
			name: "dev build",
			info: Info{Version: "dev", Commit: "unknown", Date: "unknown", GoVersion: "go1.24.6", Platform: "linux/amd64"},
			want: []string{"Storyboard dev", "(unknown)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.info.String()
			for _, substr := range tt.want {
				assert.Contains(t, got, substr)
			}
		})
	}
}

func TestInfoShort(t *testing.T) {
	assert.Equal(t, "1.2.3", Info{Version: "1.2.3"}.Short())
	assert.Equal(t, "1.2.3-rc1", Info{Version: "1.2.3-rc1"}.Short())
	assert.Equal(t, "dev", Info{Version: "dev"}.Short())
}

func TestGetInfo_DefaultsAreNeverEmpty(t *testing.T) {
	info := GetInfo()
	require.NotEmpty(t, info.Version)
	require.NotEmpty(t, info.Commit)
	require.NotEmpty(t, info.Date)
	require.NotEmpty(t, info.GoVersion)
	require.NotEmpty(t, info.Platform)
}
