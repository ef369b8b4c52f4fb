package matrix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_SaveAndLoad(t *testing.T) {
	// Given: a session
	path := filepath.Join(t.TempDir(), "state", "session.json")
	s := &Session{
		HomeserverURL: "https://matrix.example.org",
		UserID:        "@roomdex:example.org",
		DeviceID:      "ABCDEF",
		AccessToken:   "syt_secret",
	}

	// When: saving and loading it
	require.NoError(t, SaveSession(path, s))
	got, err := LoadSession(path)

	// Then: it round-trips and the file is private
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.True(t, got.Valid())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSession_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	require.NoError(t, SaveSession(path, &Session{UserID: "@a:b"}))
	require.NoError(t, SaveSession(path, &Session{UserID: "@c:d"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, "@c:d", got.UserID)
}

func TestSession_LoadMissing(t *testing.T) {
	got, err := LoadSession(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, got.Valid())
}

func TestSession_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadSession(path)
	assert.Error(t, err)
}

func TestSession_Valid(t *testing.T) {
	assert.False(t, (&Session{UserID: "@a:b", AccessToken: "t"}).Valid())
}
