package buildinfo

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReturnsCorrectDefaults(t *testing.T) {
	info := Get()

	assert.Equal(t, "meetiq", info.Name)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.Commit)
	assert.Equal(t, "unknown", info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString(t *testing.T) {
	assert.Equal(t, "dev (unknown, unknown)", String())

	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "v1.2.3"
	Commit = "abc123d"
	BuildTime = "2026-02-07T10:30:00Z"

	assert.Equal(t, "v1.2.3 (abc123d, 2026-02-07T10:30:00Z)", String())
	assert.Equal(t, "v1.2.3", Get().Version)
	assert.Equal(t, "meetiq/v1.2.3", UserAgent())
}

func TestInfo_JSONKeys(t *testing.T) {
	data, err := json.Marshal(Get())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, key := range []string{"name", "version", "commit", "build_time", "go_version", "platform"} {
		assert.Contains(t, decoded, key)
	}
	assert.Len(t, decoded, 6)
}
