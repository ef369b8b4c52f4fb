package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	assert.Equal(t, "roomdex.log", filepath.Base(path))
	assert.Contains(t, path, ".roomdex")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-only config
	logPath := filepath.Join(t.TempDir(), "nested", "roomdex.log")
	var stderr bytes.Buffer

	logger, cleanup, err := setup(Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 2}, &stderr)
	require.NoError(t, err)

	// When: logging a message
	logger.Debug("document indexed", slog.String("event_id", "abc"))
	cleanup()

	// Then: the file has one JSON line and stderr is untouched
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &m))
	assert.Equal(t, "document indexed", m["msg"])
	assert.Equal(t, "abc", m["event_id"])
	assert.Zero(t, stderr.Len())
}

func TestSetup_EmptyPathFallsBackToStderr(t *testing.T) {
	var stderr bytes.Buffer

	logger, cleanup, err := setup(Config{Level: "warn"}, &stderr)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "shown")
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestFindLogFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "roomdex.log")
	require.NoError(t, os.WriteFile(existing, []byte("{}\n"), 0o644))

	got, err := FindLogFile(existing, "")
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	got, err = FindLogFile("", existing)
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	_, err = FindLogFile(filepath.Join(dir, "missing.log"), "")
	assert.Error(t, err)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a 1MB writer keeping 2 backups
	path := filepath.Join(t.TempDir(), "roomdex.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.SetSyncEach(false)

	// When: writing a bit over 3MB
	line := []byte(strings.Repeat("x", 1023) + "\n")
	for i := 0; i < 3*1024+10; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: only .1 and .2 backups exist
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomdex.log")
	w, err := NewRotatingWriter(path, 10, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = fmt.Fprintf(w, "worker %d line %d\n", id, j)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "\n"))
}

func TestRotatingWriter_CloseTwice(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "roomdex.log"), 1, 1)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Sync())
}

func TestParseLine(t *testing.T) {
	entry := ParseLine(`{"time":"2026-01-02T03:04:05.5Z","level":"WARN","msg":"upsert failed","room_id":"!a:b"}`)
	require.True(t, entry.IsValid)
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "upsert failed", entry.Msg)
	assert.Equal(t, "!a:b", entry.Attrs["room_id"])
	assert.Equal(t, 2026, entry.Time.Year())

	invalid := ParseLine("not json")
	assert.False(t, invalid.IsValid)
	assert.Equal(t, "not json", invalid.Raw)
}

func writeLogLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roomdex.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestViewer_Tail_FiltersByLevelAndPattern(t *testing.T) {
	path := writeLogLines(t,
		`{"time":"2026-01-02T03:04:05Z","level":"DEBUG","msg":"sync"}`,
		`{"time":"2026-01-02T03:04:06Z","level":"WARN","msg":"engine slow"}`,
		`{"time":"2026-01-02T03:04:07Z","level":"ERROR","msg":"join failed"}`,
	)

	v := NewViewer(ViewerConfig{Level: "warn"}, &bytes.Buffer{})
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "engine slow", entries[0].Msg)

	v = NewViewer(ViewerConfig{Pattern: regexp.MustCompile("join")}, &bytes.Buffer{})
	entries, err = v.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "join failed", entries[0].Msg)
}

func TestViewer_Tail_LastN(t *testing.T) {
	path := writeLogLines(t, "a", "b", "c", "d")

	entries, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Raw)
	assert.Equal(t, "d", entries[1].Raw)
}

func TestViewer_FormatNoColor(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]LogEntry{
		ParseLine(`{"time":"2026-01-02T03:04:05Z","level":"INFO","msg":"indexed","index":"general"}`),
		ParseLine("plain text"),
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INFO  indexed index=general")
	assert.Equal(t, "plain text", lines[1])
}

func TestViewer_Follow(t *testing.T) {
	// Given: an existing log file being followed
	path := writeLogLines(t, `{"level":"INFO","msg":"old"}`)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- NewViewer(ViewerConfig{}, &bytes.Buffer{}).Follow(ctx, path, entries) }()
	time.Sleep(150 * time.Millisecond)

	// When: a new line is appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"level":"INFO","msg":"new"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new entry is delivered
	select {
	case e := <-entries:
		assert.Equal(t, "new", e.Msg)
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed entry")
	}
	cancel()
	assert.NoError(t, <-done)
}
