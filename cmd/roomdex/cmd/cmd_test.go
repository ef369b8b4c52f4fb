package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/roomdex/internal/config"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/gateway"
	"github.com/Aman-CERP/roomdex/internal/mapping"
	"github.com/Aman-CERP/roomdex/internal/output"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeTestConfig writes a config using the embedded backends under a temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	t.Setenv("ROOMDEX_PASSWORD", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "roomdex.yaml")
	body := `matrix:
  homeserver_url: https://matrix.example.org
  username: roomdex
search:
  backend: bleve
  data_dir: indexes
state:
  backend: bolt
  location: state
logging:
  file: roomdex.log
` + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// When: listing subcommands
	names := make(map[string]bool)
	for _, sc := range cmd.Commands() {
		names[sc.Name()] = true
	}

	// Then: every command is registered
	for _, want := range []string{"run", "web", "login", "rooms", "search", "config", "mcp", "logs", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, config.DefaultConfigFile, cfgFlag.DefValue)
	assert.Equal(t, "c", cfgFlag.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
}

func TestVersionCmd_Short(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestRoomsBind_ListAndMove(t *testing.T) {
	// Given: a config with embedded backends
	path := writeTestConfig(t, "")

	// When: binding a room by id, then moving it to a successor
	out, err := execute(t, "--config", path, "rooms", "bind", "general", "!old:example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Bound !old:example.org to general")

	out, err = execute(t, "--config", path, "rooms", "move", "!old:example.org", "!new:example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "index general")

	// Then: both rooms list under the index
	out, err = execute(t, "--config", path, "rooms", "list", "--json")
	require.NoError(t, err)
	var rooms []mapping.RoomMapping
	require.NoError(t, json.Unmarshal([]byte(out), &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "general", rooms[0].IndexName)
	assert.Equal(t, "general", rooms[1].IndexName)
}

func TestRoomsList_Empty(t *testing.T) {
	path := writeTestConfig(t, "")

	out, err := execute(t, "--config", path, "rooms", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	out, err = execute(t, "--config", path, "rooms", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No rooms are bound")
}

func TestRoomsBind_InvalidIndexName(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := execute(t, "--config", path, "rooms", "bind", "bad name", "!r:example.org")

	require.Error(t, err)
	assert.Equal(t, rxerrors.ErrCodeInvalidInput, rxerrors.GetCode(err))
}

func TestRoomsMove_UnboundSource(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := execute(t, "--config", path, "rooms", "move", "!none:example.org", "!new:example.org")

	require.Error(t, err)
	assert.Equal(t, rxerrors.ErrCodeMappingSourceMissing, rxerrors.GetCode(err))
}

func TestSearch_EmptyIndex(t *testing.T) {
	// Given: a bound but empty index
	path := writeTestConfig(t, "")
	_, err := execute(t, "--config", path, "rooms", "bind", "general", "!r:example.org")
	require.NoError(t, err)

	// When: searching it as JSON and as text
	out, err := execute(t, "--config", path, "search", "general", "deploy", "--json")
	require.NoError(t, err)

	// Then: the page is empty
	var page gateway.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)

	out, err = execute(t, "--config", path, "search", "general")
	require.NoError(t, err)
	assert.Contains(t, out, "No messages found")
}

func TestSearch_UnknownIndex(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := execute(t, "--config", path, "search", "missing", "x")

	require.Error(t, err)
	assert.Equal(t, rxerrors.ErrCodeIndexNotFound, rxerrors.GetCode(err))
}

func TestSearch_RequiresIndex(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
}

func TestPrintPage(t *testing.T) {
	// Given: a page with a highlighted hit and more results
	name := "Alice"
	page := &gateway.Page{
		Messages: []gateway.Message{{
			EventID:     "$a",
			HTMLBody:    `<span class="keyword">deploy</span> &amp; rollback`,
			DisplayName: &name,
			Timestamp:   1700000000000,
		}},
		HasMore: true,
	}
	buf := new(bytes.Buffer)

	// When: printing it without colour
	printPage(output.NewWithColor(buf, false), searchOptions{index: "general", query: "deploy"}, page)

	// Then: the match is marked and the next page command is shown
	out := buf.String()
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "**deploy** & rollback")
	assert.Contains(t, out, "roomdex search general deploy --before 1700000000000")
}

func TestConfigInit_CreatesAndProtects(t *testing.T) {
	// Given: no config file yet
	path := filepath.Join(t.TempDir(), "roomdex.yaml")

	// When: initializing twice without --force
	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	require.FileExists(t, path)

	out, err = execute(t, "--config", path, "config", "init")

	// Then: the second run leaves the file alone
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomdex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o600))

	out, err := execute(t, "--config", path, "config", "init", "--force")

	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigInit_OutputValidates(t *testing.T) {
	t.Setenv("ROOMDEX_PASSWORD", "")
	path := filepath.Join(t.TempDir(), "roomdex.yaml")
	_, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "config", "validate")

	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "general")
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := writeTestConfig(t, "ingest:\n  member_cache_size: -1\n")

	_, err := execute(t, "--config", path, "config", "validate")

	require.Error(t, err)
	assert.Equal(t, rxerrors.ErrCodeConfigInvalid, rxerrors.GetCode(err))
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	path := writeTestConfig(t, "")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := strings.Replace(string(data), "username: roomdex", "username: roomdex\n  password: hunter2", 1)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, redacted)

	out, err = execute(t, "--config", path, "config", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"homeserver_url": "https://matrix.example.org"`)
}

func TestLogsCmd_TailFilters(t *testing.T) {
	// Given: a JSON log file
	logFile := filepath.Join(t.TempDir(), "roomdex.log")
	lines := []string{
		`{"time":"2026-01-02T03:04:05Z","level":"INFO","msg":"dispatcher_started"}`,
		`{"time":"2026-01-02T03:04:06Z","level":"WARN","msg":"tombstone_failed","room_id":"!a:x"}`,
		`{"time":"2026-01-02T03:04:07Z","level":"INFO","msg":"room_renamed"}`,
	}
	require.NoError(t, os.WriteFile(logFile, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	// When: showing warnings only
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"),
		"logs", "--file", logFile, "--level", "warn", "--no-color")

	// Then: only the warning is printed
	require.NoError(t, err)
	assert.Contains(t, out, "tombstone_failed")
	assert.NotContains(t, out, "dispatcher_started")
}

func TestLogsCmd_BadPattern(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "roomdex.log")
	require.NoError(t, os.WriteFile(logFile, []byte("{}\n"), 0o600))

	_, err := execute(t, "logs", "--file", logFile, "--grep", "(")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --grep pattern")
}

func TestLogsCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "logs", "--file", filepath.Join(t.TempDir(), "absent.log"))
	require.Error(t, err)
}

func TestLoginCmd_RequiresPassword(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := execute(t, "--config", path, "login")

	require.Error(t, err)
	assert.Equal(t, rxerrors.ErrCodeInvalidInput, rxerrors.GetCode(err))
}

func TestRunCmd_RequiresLoginSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomdex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  backend: bleve\n"), 0o600))

	_, err := execute(t, "--config", path, "run")

	require.Error(t, err)
	assert.Equal(t, rxerrors.ErrCodeConfigInvalid, rxerrors.GetCode(err))
}
