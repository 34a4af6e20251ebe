package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
collections:
  - name: users
    indexes:
      - field: status
        kind: equality
    documents:
      - _key: u1
        name: Alice
        status: active
      - _key: u2
        name: Bob
        status: inactive
`

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errBuf bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errBuf.String(), err
}

func TestLoadCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	fixture := writeFixture(t, dir)

	out, _, err := runCLI(t, "--db", db, "--format", "json", "load", fixture)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["files"])
	assert.Equal(t, float64(2), data["documents"])
}

func TestQueryCommandJSON(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	fixture := writeFixture(t, dir)

	_, _, err := runCLI(t, "--db", db, "load", fixture)
	require.NoError(t, err)

	out, _, err := runCLI(t, "--db", db, "--format", "json", "query",
		`FOR u IN users FILTER u.status == 'active' RETURN u.name`)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["count"])
	assert.Equal(t, []any{"Alice"}, data["entities"])
}

func TestQueryCommandText(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	fixture := writeFixture(t, dir)

	_, _, err := runCLI(t, "--db", db, "load", fixture)
	require.NoError(t, err)

	out, _, err := runCLI(t, "--db", db, "query",
		`FOR u IN users FILTER u.status == 'active' RETURN u.name`)
	require.NoError(t, err)
	assert.Contains(t, out, `"Alice"`)
	assert.Contains(t, out, "1 row(s)")
}

func TestQueryCommandReportsQueryErrors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")

	out, _, err := runCLI(t, "--db", db, "--format", "json", "query", `FOR u IN`)
	require.Error(t, err)
	assert.Equal(t, ExitQueryError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PARSE_ERROR", resp.Error.Code)
	assert.True(t, resp.Error.Client)
}

func TestLoadCommandMissingFileIsCommandError(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")

	_, _, err := runCLI(t, "--db", db, "load", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCollectionsCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	fixture := writeFixture(t, dir)

	_, _, err := runCLI(t, "--db", db, "load", fixture)
	require.NoError(t, err)

	out, _, err := runCLI(t, "--db", db, "collections")
	require.NoError(t, err)
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "1 collection(s)")

	out, _, err = runCLI(t, "--db", db, "--format", "json", "collections")
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, []any{"users"}, data["collections"])
}

func TestInvalidFormatRejected(t *testing.T) {
	_, _, err := runCLI(t, "--format", "xml", "collections")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(&ExitError{Code: ExitCommandError, Message: "x"}))
	assert.Equal(t, ExitQueryError, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitCommandError, "outer", errors.New("inner"))
	assert.Equal(t, "outer: inner", wrapped.Error())
	assert.Equal(t, "inner", errors.Unwrap(wrapped).Error())
}

func TestOutputFormatterVerboseLog(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errBuf, Verbose: true}

	f.VerboseLog("loaded %d docs", 3)
	assert.Empty(t, out.String(), "verbose output must not corrupt JSON on stdout")
	assert.Equal(t, "loaded 3 docs\n", errBuf.String())

	quiet := &OutputFormatter{Format: "text", Writer: &out, Verbose: false}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}
