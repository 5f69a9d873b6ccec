package cliapp

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"toolhost/internal/core/config"
	"toolhost/internal/data/history"
	"toolhost/internal/policy"
	"toolhost/internal/shared/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a fresh command tree and captures stdout and stderr.
func executeCommand(stdin string, args ...string) (stdout, stderr string, err error) {
	root := NewRootCmd()
	var outBuf, errBuf bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeProjectConfig creates a project directory with a config file rooted
// at it and returns both paths.
func writeProjectConfig(t *testing.T, extra string) (projectDir, configPath string) {
	t.Helper()
	projectDir = t.TempDir()
	configPath = filepath.Join(projectDir, "toolhost.toml")
	content := "[session]\nproject = '" + projectDir + "'\n" + extra
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return projectDir, configPath
}

func decodeListing(t *testing.T, out string) []toolListing {
	t.Helper()
	var listing []toolListing
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	return listing
}

func listingNames(listing []toolListing) []string {
	names := make([]string, 0, len(listing))
	for _, item := range listing {
		names = append(names, item.Name)
	}
	return names
}

func TestVersionCommand(t *testing.T) {
	out, _, err := executeCommand("", "version")
	require.NoError(t, err)
	assert.Equal(t, "toolhost version "+version.Version+"\n", out)
}

func TestInitCommand_WritesOnce(t *testing.T) {
	target := filepath.Join(t.TempDir(), "conf", "toolhost.toml")

	out, _, err := executeCommand("", "init", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+target)

	cfg, err := config.Load(target)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	out, _, err = executeCommand("", "init", target)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestToolsCommand_DefaultPolicyShowsNothing(t *testing.T) {
	_, configPath := writeProjectConfig(t, "")

	out, _, err := executeCommand("", "tools", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `No tools visible under context "default" with modes [interactive, editing].`)
}

func TestToolsCommand_VisibleUnderFlags(t *testing.T) {
	_, configPath := writeProjectConfig(t, "")

	out, _, err := executeCommand("", "tools", "--config", configPath, "--context", "full", "--mode", "analysis", "--json")
	require.NoError(t, err)

	listing := decodeListing(t, out)
	assert.Equal(t, []string{"analyze_code", "generate_report"}, listingNames(listing))
	assert.Equal(t, []string{"path", "query"}, listing[0].Parameters)
}

func TestToolsCommand_AllIgnoresPolicy(t *testing.T) {
	_, configPath := writeProjectConfig(t, "")

	out, _, err := executeCommand("", "tools", "--config", configPath, "--all", "--json")
	require.NoError(t, err)
	assert.Len(t, decodeListing(t, out), 11)

	out, _, err = executeCommand("", "tools", "--config", configPath, "--category", "editing", "--json")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"edit_symbol", "create_file", "delete_file"}, listingNames(decodeListing(t, out)))

	out, _, err = executeCommand("", "tools", "--config", configPath, "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "find_referencing_symbols")
}

func TestToolsCommand_InvalidFlags(t *testing.T) {
	_, configPath := writeProjectConfig(t, "")

	_, _, err := executeCommand("", "tools", "--config", configPath, "--context", " ")
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitConfig, exitErr.Code)

	_, _, err = executeCommand("", "tools", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitConfig, exitErr.Code)
}

func TestModeCreate_ThenResolvedByName(t *testing.T) {
	projectDir, configPath := writeProjectConfig(t, "")

	out, _, err := executeCommand("", "mode", "create", "plain", "--config", configPath,
		"--description", "No overlay", "--setting", "verbose=true", "--setting", "label=quiet")
	require.NoError(t, err)

	path := filepath.Join(projectDir, ".toolhost", "policies", "plain_mode.json")
	assert.Contains(t, out, path)

	m, err := policy.ReadModeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "plain", m.Name)
	assert.Equal(t, "No overlay", m.Description)
	assert.Equal(t, map[string]any{"verbose": true, "label": "quiet"}, m.Settings)

	out, _, err = executeCommand("", "tools", "--config", configPath, "--mode", "plain", "--json")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"find_symbol", "get_symbols_overview", "search_for_pattern"},
		listingNames(decodeListing(t, out)))
}

func TestContextCreate_ExplicitDir(t *testing.T) {
	dir := t.TempDir()

	_, _, err := executeCommand("", "context", "create", "reviewer", "--dir", dir,
		"--tool", "find_symbol", "--tool", "analyze_code")
	require.NoError(t, err)

	ctx, err := policy.ReadContextFile(filepath.Join(dir, "reviewer_context.json"))
	require.NoError(t, err)
	assert.Equal(t, "reviewer", ctx.Name)
	assert.Equal(t, []string{"find_symbol", "analyze_code"}, ctx.Tools)
}

func TestContextCreate_BadSetting(t *testing.T) {
	_, _, err := executeCommand("", "context", "create", "x", "--dir", t.TempDir(), "--setting", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

func TestStatusCommand(t *testing.T) {
	projectDir, configPath := writeProjectConfig(t, "")

	out, _, err := executeCommand("", "status", "--config", configPath, "--context", "minimal", "--mode", "analysis", "--json")
	require.NoError(t, err)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, filepath.Base(projectDir), status["project"])
	assert.Equal(t, "minimal", status["context"])
	assert.EqualValues(t, 11, status["registered_tools"])
	assert.EqualValues(t, 0, status["visible_tools"])

	out, _, err = executeCommand("", "status", "--config", configPath, "--openai-compatible")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema profile: openai")
}

func TestStatusCommand_NoColor(t *testing.T) {
	_, configPath := writeProjectConfig(t, "")

	out, _, err := executeCommand("", "status", "--config", configPath, "--context", "full", "--mode", "analysis", "--no-color")
	require.NoError(t, err)
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "Visible:        2")
	assert.Contains(t, out, "  - analyze_code\n")
}

func TestHistoryCommand(t *testing.T) {
	projectDir := t.TempDir()

	out, _, err := executeCommand("", "history", "--project", projectDir)
	require.NoError(t, err)
	assert.Contains(t, out, "No call history")

	store, err := history.Open(filepath.Join(projectDir, ".toolhost", "history.db"))
	require.NoError(t, err)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.SaveCalls([]history.CallRecord{
		{Tool: "find_symbol", Context: "default", Outcome: history.OutcomeSuccess, StartedAt: base, Duration: 3 * time.Millisecond},
		{Tool: "find_symbol", Context: "default", Outcome: history.OutcomeError, ErrorCode: "not_found", StartedAt: base.Add(time.Second)},
	}))
	require.NoError(t, store.Close())

	out, _, err = executeCommand("", "history", "--project", projectDir, "--json")
	require.NoError(t, err)
	var rows []historyRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, history.OutcomeError, rows[0].Outcome)
	assert.Equal(t, "3ms", rows[1].Duration)

	out, _, err = executeCommand("", "history", "--project", projectDir, "--tool", "find_symbol")
	require.NoError(t, err)
	assert.Equal(t, "find_symbol: 1 success, 1 error\n", out)
}

func TestServeCommand_StdioUntilEOF(t *testing.T) {
	_, configPath := writeProjectConfig(t, "")

	stdin := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n"
	out, stderr, err := executeCommand(stdin, "serve", "--config", configPath,
		"--context", "full", "--mode", "analysis", "--transport", "stdio")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var list struct {
		ID     int `json:"id"`
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &list))
	assert.Equal(t, 2, list.ID)
	require.Len(t, list.Result.Tools, 2)
	assert.Equal(t, "analyze_code", list.Result.Tools[0].Name)

	assert.Contains(t, stderr, "mcp runtime active")
}

func TestServeCommand_RejectsUnknownTransport(t *testing.T) {
	_, configPath := writeProjectConfig(t, "")

	_, _, err := executeCommand("", "serve", "--config", configPath, "--transport", "carrier-pigeon")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitConfig, exitErr.Code)
	assert.Contains(t, exitErr.Message, "mcp.transport")
}

func TestRun_ExitCodes(t *testing.T) {
	assert.Equal(t, 0, Run([]string{"version"}))
	assert.Equal(t, 1, Run([]string{"no-such-command"}))
}

func TestLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "toolhost.log")
	_, configPath := writeProjectConfig(t, "")

	_, stderr, err := executeCommand("", "status", "--config", configPath, "--context", "does-not-exist", "--log-file", logPath)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "level=")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "level=WARN")
}
