package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/config"
	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/llm/anthropic"
	"github.com/becomeliminal/nim-graph/llm/mock"
	"github.com/becomeliminal/nim-graph/logging"
	"github.com/becomeliminal/nim-graph/memory"
	"github.com/becomeliminal/nim-graph/memory/embedder/cache"
	"github.com/becomeliminal/nim-graph/memory/embedder/hashing"
	"github.com/becomeliminal/nim-graph/memory/embedder/onnx"
	"github.com/becomeliminal/nim-graph/memory/store/chromem"
	"github.com/becomeliminal/nim-graph/orchestrator"
	"github.com/becomeliminal/nim-graph/search"
	"github.com/becomeliminal/nim-graph/session"
	"github.com/becomeliminal/nim-graph/tools"
	"github.com/becomeliminal/nim-graph/tools/catalog"
	"github.com/becomeliminal/nim-graph/tools/mcp"
)

// app holds everything a conversation needs. Close releases it in reverse
// order of construction.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	memory       *memory.Manager
	sessions     session.Store
	orchestrator *orchestrator.Orchestrator
	registry     *prometheus.Registry

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	_ = a.logger.Sync()
	return first
}

// loadApp reads configuration and builds the logger only.
func loadApp() (*app, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, &core.ConfigurationError{Field: "log", Reason: err.Error()}
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// newApp builds the full stack: model, memory, tools, search, graph and
// session store.
func newApp(ctx context.Context) (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	if err := a.buildMemory(); err != nil {
		return err
	}
	gateway, err := a.buildTools(ctx)
	if err != nil {
		return err
	}
	deps := orchestrator.Deps{
		Model:               a.buildModel(),
		Memory:              a.memory,
		Tools:               gateway,
		Search:              a.buildSearch(gateway),
		SystemPrompt:        a.cfg.Prompt.System,
		DuplicateSimilarity: a.cfg.Memory.DuplicateSimilarity,
		ReportDir:           a.cfg.Reports.Dir,
		Logger:              a.logger,
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	workflow, err := a.buildWorkflow(deps)
	if err != nil {
		return err
	}

	if err := a.buildSessions(); err != nil {
		return err
	}
	opts := []orchestrator.Option{orchestrator.WithLogger(a.logger)}
	if a.cfg.Prompt.System != "" {
		opts = append(opts, orchestrator.WithSystemPrompt(a.cfg.Prompt.System))
	}
	a.orchestrator = orchestrator.New(workflow, a.sessions, opts...)
	return nil
}

func (a *app) buildModel() llm.Model {
	c := a.cfg.LLM
	if c.Provider == "mock" {
		a.logger.Warn("using the offline model; replies are canned")
		return mock.Offline()
	}
	client := anthropic.New(c.APIKey,
		anthropic.WithModel(c.Model),
		anthropic.WithMaxTokens(c.MaxTokens),
		anthropic.WithMaxTurns(c.MaxTurns),
		anthropic.WithLogger(a.logger))

	guard := llm.DefaultGuardConfig(c.Provider)
	guard.Timeout = c.Timeout
	guard.MinRequests = c.Breaker.MinRequests
	guard.FailureThreshold = c.Breaker.FailureThreshold
	guard.OpenTimeout = c.Breaker.OpenTimeout
	return llm.Guard(client, guard, a.logger)
}

func (a *app) buildEmbedder() (memory.Embedder, error) {
	c := a.cfg.Memory
	var base memory.Embedder
	switch c.Embedder {
	case "onnx":
		emb, err := onnx.New(onnx.Config{
			ModelPath:         c.ONNX.ModelPath,
			TokenizerPath:     c.ONNX.TokenizerPath,
			SharedLibraryPath: c.ONNX.SharedLibraryPath,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("onnx embedder: %w", err)
		}
		a.onClose(emb.Close)
		base = emb
	default:
		base = hashing.New(hashing.DefaultDimensions)
	}
	if c.CacheSize == 0 {
		return base, nil
	}
	cached, err := cache.New(base, c.CacheSize)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		a.logger.Debug("closing embedding cache", zap.Uint64("hits", cached.Hits()))
		cached.Close()
		return nil
	})
	return cached, nil
}

func (a *app) buildMemory() error {
	c := a.cfg.Memory
	embedder, err := a.buildEmbedder()
	if err != nil {
		return err
	}
	store, err := chromem.New(
		chromem.WithPersistDir(c.PersistDir),
		chromem.WithCollection(c.Collection),
		chromem.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	a.onClose(store.Close)
	a.memory = memory.NewManager(store, embedder, &memory.Config{
		TopK:      c.TopK,
		ChunkSize: c.ChunkSize,
		Timeout:   c.Timeout,
	}, memory.WithLogger(a.logger))
	return nil
}

// buildTools connects the configured MCP servers and, when enabled, the
// builtin catalog over an in-memory transport. A nil gateway means no tools.
func (a *app) buildTools(ctx context.Context) (tools.Gateway, error) {
	c := a.cfg.Tools
	if len(c.MCPServers) == 0 && !c.BuiltinCatalog {
		return nil, nil
	}
	g, err := mcp.Connect(ctx, c.MCPServers, mcp.WithTimeout(c.Timeout), mcp.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.onClose(g.Close)

	if c.BuiltinCatalog {
		srv, err := newCatalogServer(catalog.Config{OrdersPath: c.OrdersPath}, a.logger)
		if err != nil {
			return nil, err
		}
		serverT, clientT := sdkmcp.NewInMemoryTransports()
		ss, err := srv.MCPServer.Connect(ctx, serverT, nil)
		if err != nil {
			return nil, fmt.Errorf("start builtin catalog: %w", err)
		}
		a.onClose(ss.Close)
		if err := g.ConnectTransport(ctx, "catalog", clientT); err != nil {
			return nil, err
		}
	}
	a.logger.Info("tools ready", zap.Int("count", len(g.Definitions())))
	return g, nil
}

func newCatalogServer(cfg catalog.Config, logger *zap.Logger) (*catalog.Server, error) {
	cat, err := catalog.Load(cfg)
	if err != nil {
		return nil, err
	}
	return catalog.NewServer(cat, catalog.NewWeatherClient("", 0), logger), nil
}

func (a *app) buildSearch(gateway tools.Gateway) search.Provider {
	c := a.cfg.Search
	switch c.Provider {
	case "tavily":
		return search.NewTavily(c.APIKey,
			search.WithMaxResults(c.MaxResults),
			search.WithHTTPClient(&http.Client{Timeout: a.cfg.Tools.Timeout}),
			search.WithLogger(a.logger))
	case "gateway":
		if gateway != nil {
			return search.NewGateway(gateway, c.Tool)
		}
	}
	return search.None
}

func (a *app) buildWorkflow(deps orchestrator.Deps) (*engine.Workflow, error) {
	c := a.cfg.Graph
	def, err := a.definition(deps)
	if err != nil {
		return nil, err
	}
	return engine.Compile(def,
		engine.WithMaxSteps(c.MaxSteps),
		engine.WithNodeTimeout(c.NodeTimeout),
		engine.WithConcurrency(c.Concurrency),
		engine.WithLogger(a.logger),
		engine.WithMetrics(engine.NewMetrics(a.registry)))
}

func (a *app) definition(deps orchestrator.Deps) (*engine.Definition, error) {
	c := a.cfg.Graph
	if c.DefinitionFile == "" {
		def, ok := orchestrator.Definition(c.Kind, deps)
		if !ok {
			return nil, fmt.Errorf("unknown graph kind %q", c.Kind)
		}
		return def, nil
	}
	return loadTopology(c.DefinitionFile, deps)
}

func loadTopology(path string, deps orchestrator.Deps) (*engine.Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph definition: %w", err)
	}
	defer f.Close()
	def, err := engine.LoadDefinition(f, orchestrator.Registry(deps))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return def, nil
}

func (a *app) buildSessions() error {
	c := a.cfg.Session
	if c.Backend == "sqlite" {
		store, err := session.OpenSQLite(c.Path, a.logger)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		a.sessions = store
	} else {
		a.sessions = session.NewMemoryStore()
	}
	a.onClose(a.sessions.Close)
	return nil
}
