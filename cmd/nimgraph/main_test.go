package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-graph/engine"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "nimgraph.yaml")
	body := `
llm:
  provider: mock
memory:
  persist_dir: ` + filepath.Join(dir, "memory") + `
tools:
  builtin_catalog: false
log:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestGraphValidate(t *testing.T) {
	out, err := execute(t, "", "graph", "validate", filepath.Join("..", "..", "orchestrator", "testdata", "assistant.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok: retrieve, chat, evaluate, search, store")
}

func TestGraphValidateRejectsBrokenTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - name: chat
edges:
  - from: START
    to: chat
  - from: chat
    to: missing
`), 0o600))

	_, err := execute(t, "", "graph", "validate", path)
	var defErr *engine.GraphDefinitionError
	require.ErrorAs(t, err, &defErr)
}

func TestChatRemembersAcrossTurns(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	out, err := execute(t, "My name is Shibin\nWhat is my name?\n/clear\n/exit\n", "--config", cfg, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "(offline) You said: My name is Shibin")
	assert.Contains(t, out, "From what I remember: User's name is Shibin")
	assert.Contains(t, out, "history cleared")

	out, err = execute(t, "", "--config", cfg, "memory", "search", "name")
	require.NoError(t, err)
	assert.Contains(t, out, "User's name is Shibin")
	assert.Contains(t, out, "session:cli")

	out, err = execute(t, "", "--config", cfg, "memory", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 memories")

	out, err = execute(t, "", "--config", cfg, "memory", "search", "name")
	require.NoError(t, err)
	assert.Contains(t, out, "no memories")
}

func TestChatNeedsCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("NIMGRAPH_LLM_API_KEY", "")
	_, err := execute(t, "", "chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key")
}
