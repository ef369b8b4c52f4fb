package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_FillsEveryField(t *testing.T) {
	info := Get()

	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestGet_LdflagsWin(t *testing.T) {
	// Given: values injected at link time
	oldCommit, oldDate := Commit, Date
	Commit, Date = "abc123", "2026-01-02T03:04:05Z"
	defer func() { Commit, Date = oldCommit, oldDate }()

	// When: reading build info
	info := Get()

	// Then: they are reported as-is
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.Date)
}

func TestString(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, "roomdex "+Version+" "), s)
	assert.Contains(t, s, runtime.GOOS)
}

func TestBuildInfo_JSON(t *testing.T) {
	data, err := json.Marshal(Get())
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"version", "commit", "date", "go_version", "platform"} {
		assert.Contains(t, m, key)
	}
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "0123456789ab", shorten("0123456789abcdef"))
	assert.Equal(t, "abc", shorten("abc"))
}
