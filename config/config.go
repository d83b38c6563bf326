// Package config loads settings from defaults, an optional YAML file and
// NIMGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/tools/mcp"
)

// EnvPrefix prefixes every environment override, e.g. NIMGRAPH_LLM_MODEL.
const EnvPrefix = "NIMGRAPH"

// Config is the full process configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Graph   GraphConfig   `mapstructure:"graph"`
	Session SessionConfig `mapstructure:"session"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Search  SearchConfig  `mapstructure:"search"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Prompt  PromptConfig  `mapstructure:"prompt"`
	Reports ReportsConfig `mapstructure:"reports"`
}

// LLMConfig selects the language model.
type LLMConfig struct {
	Provider  string        `mapstructure:"provider" validate:"oneof=anthropic mock"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model" validate:"required"`
	MaxTokens int64         `mapstructure:"max_tokens" validate:"gt=0"`
	MaxTurns  int           `mapstructure:"max_turns" validate:"gt=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the model circuit breaker. It opens once at least
// MinRequests calls were made and the failure ratio reaches FailureThreshold.
type BreakerConfig struct {
	MinRequests      uint32        `mapstructure:"min_requests" validate:"gt=0"`
	FailureThreshold float64       `mapstructure:"failure_threshold" validate:"gt=0,lte=1"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" validate:"gt=0"`
}

// MemoryConfig configures long-term memory.
type MemoryConfig struct {
	PersistDir          string        `mapstructure:"persist_dir"`
	Collection          string        `mapstructure:"collection" validate:"required"`
	TopK                int           `mapstructure:"top_k" validate:"gt=0"`
	ChunkSize           int           `mapstructure:"chunk_size" validate:"gt=0"`
	DuplicateSimilarity float32       `mapstructure:"duplicate_similarity" validate:"gt=0,lte=1"`
	Embedder            string        `mapstructure:"embedder" validate:"oneof=hashing onnx"`
	CacheSize           int64         `mapstructure:"cache_size" validate:"gte=0"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gte=0"`
	ONNX                ONNXConfig    `mapstructure:"onnx"`
}

// ONNXConfig points at the local embedding model.
type ONNXConfig struct {
	ModelPath         string `mapstructure:"model_path"`
	TokenizerPath     string `mapstructure:"tokenizer_path"`
	SharedLibraryPath string `mapstructure:"shared_library_path"`
}

// GraphConfig selects and bounds the conversation graph.
type GraphConfig struct {
	Kind           string        `mapstructure:"kind" validate:"oneof=assistant router"`
	MaxSteps       int           `mapstructure:"max_steps" validate:"gt=0"`
	NodeTimeout    time.Duration `mapstructure:"node_timeout" validate:"gte=0"`
	Concurrency    int           `mapstructure:"concurrency" validate:"gte=0"`
	DefinitionFile string        `mapstructure:"definition_file"`
}

// SessionConfig selects the chat history backend.
type SessionConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory sqlite"`
	Path    string `mapstructure:"path" validate:"required_if=Backend sqlite"`
}

// ToolsConfig lists tool servers.
type ToolsConfig struct {
	MCPServers []mcp.Endpoint `mapstructure:"mcp_servers" validate:"dive"`
	Timeout    time.Duration  `mapstructure:"timeout" validate:"gt=0"`
	// BuiltinCatalog serves the restaurant and parking catalog in process.
	BuiltinCatalog bool `mapstructure:"builtin_catalog"`
	// OrdersPath persists orders placed through the builtin catalog.
	OrdersPath string `mapstructure:"orders_path"`
}

// SearchConfig selects the web search provider.
type SearchConfig struct {
	Provider   string `mapstructure:"provider" validate:"oneof=tavily gateway none"`
	APIKey     string `mapstructure:"api_key"`
	Tool       string `mapstructure:"tool"`
	MaxResults int    `mapstructure:"max_results" validate:"gt=0"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	GRPCAddr string `mapstructure:"grpc_addr"`
	// RequestTimeout bounds one message turn. Zero means no limit.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// PromptConfig overrides the system prompt.
type PromptConfig struct {
	System string `mapstructure:"system"`
}

// ReportsConfig sets where generated reports are written. Empty disables export.
type ReportsConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.max_turns", 10)
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("llm.breaker.min_requests", 5)
	v.SetDefault("llm.breaker.failure_threshold", 0.6)
	v.SetDefault("llm.breaker.open_timeout", "30s")

	v.SetDefault("memory.persist_dir", "")
	v.SetDefault("memory.collection", "personal_memory")
	v.SetDefault("memory.top_k", 4)
	v.SetDefault("memory.chunk_size", 500)
	v.SetDefault("memory.duplicate_similarity", 0.95)
	v.SetDefault("memory.embedder", "hashing")
	v.SetDefault("memory.cache_size", 10000)
	v.SetDefault("memory.timeout", "10s")

	v.SetDefault("graph.kind", "assistant")
	v.SetDefault("graph.max_steps", 25)
	v.SetDefault("graph.node_timeout", "2m")
	v.SetDefault("graph.concurrency", 4)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.path", "")

	v.SetDefault("tools.timeout", "30s")
	v.SetDefault("tools.builtin_catalog", true)
	v.SetDefault("tools.orders_path", "")

	v.SetDefault("search.provider", "none")
	v.SetDefault("search.tool", "web_search")
	v.SetDefault("search.max_results", 5)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.request_timeout", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration. An empty path skips the file. The result is
// validated; problems come back as *core.ConfigurationError.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &core.ConfigurationError{Field: "file", Reason: fmt.Sprintf("read %s: %v", path, err)}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider keys are commonly exported under their vendor names.
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("search.api_key", EnvPrefix+"_SEARCH_API_KEY", "TAVILY_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("decode: %v", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &core.ConfigurationError{Field: fieldPath(fe.Namespace()), Reason: describe(fe)}
		}
		return &core.ConfigurationError{Reason: err.Error()}
	}

	if c.LLM.Provider == "anthropic" && strings.TrimSpace(c.LLM.APIKey) == "" {
		return &core.ConfigurationError{Field: "llm.api_key", Reason: "required for the anthropic provider (set ANTHROPIC_API_KEY)"}
	}
	if c.Search.Provider == "tavily" && strings.TrimSpace(c.Search.APIKey) == "" {
		return &core.ConfigurationError{Field: "search.api_key", Reason: "required for the tavily provider (set TAVILY_API_KEY)"}
	}
	if c.Search.Provider == "gateway" && len(c.Tools.MCPServers) == 0 {
		return &core.ConfigurationError{Field: "search.provider", Reason: "gateway search needs at least one tools.mcp_servers entry"}
	}
	if c.Memory.Embedder == "onnx" && (c.Memory.ONNX.ModelPath == "" || c.Memory.ONNX.TokenizerPath == "") {
		return &core.ConfigurationError{Field: "memory.onnx", Reason: "model_path and tokenizer_path are required for the onnx embedder"}
	}
	return nil
}

// fieldPath turns "Config.llm.breaker.min_requests" into "llm.breaker.min_requests".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got %v)", fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
