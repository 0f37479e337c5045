// Package config loads the agent configuration from an optional YAML
// file, environment variables, and built-in defaults, in that
// precedence order (env highest).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Models   ModelsConfig   `mapstructure:"models"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Store    StoreConfig    `mapstructure:"store"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type ModelsConfig struct {
	Chat      string `mapstructure:"chat"`
	Embedding string `mapstructure:"embedding"`

	// Reranking enables the rerank stage when non-empty.
	Reranking string `mapstructure:"reranking"`
}

type PipelineConfig struct {
	MaxRetrievalDocs int     `mapstructure:"max_retrieval_docs"`
	HistoryLimit     int     `mapstructure:"history_limit"`
	SummaryLength    int     `mapstructure:"summary_length"`
	Temperature      float64 `mapstructure:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	SystemPrompt     string  `mapstructure:"system_prompt"`

	QueryRewriting        bool `mapstructure:"query_rewriting"`
	ResponseSummarization bool `mapstructure:"response_summarization"`
	Caching               bool `mapstructure:"caching"`
}

type StoreConfig struct {
	// Path is the on-disk database directory; empty keeps everything
	// in memory.
	Path string `mapstructure:"path"`

	TopK         int    `mapstructure:"top_k"`
	CacheSize    int    `mapstructure:"cache_size"`
	DisableCache bool   `mapstructure:"disable_cache"`
	ExchangeLog  string `mapstructure:"exchange_log"`
}

type ToolsConfig struct {
	// Enabled names the tools to register, in invocation order.
	// Recognized: web_search, wikipedia, news.
	Enabled []string `mapstructure:"enabled"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from path (optional), applies OLLAMA_* and
// RAG_* environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("models.chat", "llama3.2")
	v.SetDefault("models.embedding", "nomic-embed-text")
	v.SetDefault("pipeline.max_retrieval_docs", 5)
	v.SetDefault("pipeline.history_limit", 10)
	v.SetDefault("pipeline.summary_length", 200)
	v.SetDefault("pipeline.temperature", 0.7)
	v.SetDefault("pipeline.query_rewriting", true)
	v.SetDefault("pipeline.caching", true)
	v.SetDefault("store.top_k", 5)
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about, so keys
	// without a default must be bound explicitly or their RAG_*
	// overrides are ignored during Unmarshal.
	for _, key := range []string{
		"ollama.base_url",
		"models.chat", "models.embedding", "models.reranking",
		"pipeline.max_retrieval_docs", "pipeline.history_limit", "pipeline.summary_length",
		"pipeline.temperature", "pipeline.max_tokens", "pipeline.system_prompt",
		"pipeline.query_rewriting", "pipeline.response_summarization", "pipeline.caching",
		"store.path", "store.top_k", "store.cache_size", "store.disable_cache", "store.exchange_log",
		"tools.enabled",
		"logging.level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if url := os.Getenv("OLLAMA_HOST"); url != "" {
		v.Set("ollama.base_url", url)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Models.Chat == "" {
		return nil, fmt.Errorf("models.chat is required")
	}
	if cfg.Models.Embedding == "" {
		return nil, fmt.Errorf("models.embedding is required")
	}
	for _, tool := range cfg.Tools.Enabled {
		switch tool {
		case "web_search", "wikipedia", "news":
		default:
			return nil, fmt.Errorf("unknown tool %q in tools.enabled", tool)
		}
	}

	return &cfg, nil
}
