package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-graph/core"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ANTHROPIC_API_KEY", "TAVILY_API_KEY", "NIMGRAPH_LLM_API_KEY", "NIMGRAPH_SEARCH_API_KEY"} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nimgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.Memory.TopK)
	assert.Equal(t, 500, cfg.Memory.ChunkSize)
	assert.InDelta(t, 0.95, cfg.Memory.DuplicateSimilarity, 1e-6)
	assert.Equal(t, 25, cfg.Graph.MaxSteps)
	assert.Equal(t, "assistant", cfg.Graph.Kind)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, "none", cfg.Search.Provider)
	assert.True(t, cfg.Tools.BuiltinCatalog)
	assert.Equal(t, 5*time.Minute, cfg.Server.RequestTimeout)
	assert.Equal(t, uint32(5), cfg.LLM.Breaker.MinRequests)
	assert.InDelta(t, 0.6, cfg.LLM.Breaker.FailureThreshold, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.LLM.Breaker.OpenTimeout)
}

func TestLoadMissingAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "llm.api_key", cfgErr.Field)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
llm:
  provider: mock
graph:
  kind: router
  max_steps: 40
session:
  backend: sqlite
  path: /tmp/sessions.db
tools:
  mcp_servers:
    - name: catalog
      url: http://localhost:8090/mcp
memory:
  top_k: 6
`)
	t.Setenv("NIMGRAPH_GRAPH_MAX_STEPS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "router", cfg.Graph.Kind)
	assert.Equal(t, 12, cfg.Graph.MaxSteps)
	assert.Equal(t, 6, cfg.Memory.TopK)
	assert.Equal(t, "/tmp/sessions.db", cfg.Session.Path)
	require.Len(t, cfg.Tools.MCPServers, 1)
	assert.Equal(t, "catalog", cfg.Tools.MCPServers[0].Name)
}

func TestValidationErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad graph kind", "llm: {provider: mock}\ngraph: {kind: pipeline}\n", "graph.kind"},
		{"sqlite without path", "llm: {provider: mock}\nsession: {backend: sqlite}\n", "session.path"},
		{"similarity above one", "llm: {provider: mock}\nmemory: {duplicate_similarity: 1.5}\n", "memory.duplicate_similarity"},
		{"bad server url", "llm: {provider: mock}\ntools: {mcp_servers: [{name: x, url: 'not a url'}]}\n", "tools.mcp_servers[0].url"},
		{"tavily without key", "llm: {provider: mock}\nsearch: {provider: tavily}\n", "search.api_key"},
		{"gateway search without servers", "llm: {provider: mock}\nsearch: {provider: gateway}\n", "search.provider"},
		{"zero breaker min requests", "llm: {provider: mock, breaker: {min_requests: 0}}\n", "llm.breaker.min_requests"},
		{"breaker threshold above one", "llm: {provider: mock, breaker: {failure_threshold: 1.5}}\n", "llm.breaker.failure_threshold"},
		{"onnx without model", "llm: {provider: mock}\nmemory: {embedder: onnx}\n", "memory.onnx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "file", cfgErr.Field)
}

func TestTavilyKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("TAVILY_API_KEY", "tv-123")

	cfg, err := Load(writeFile(t, "llm: {provider: mock}\nsearch: {provider: tavily}\n"))
	require.NoError(t, err)
	assert.Equal(t, "tv-123", cfg.Search.APIKey)
}
