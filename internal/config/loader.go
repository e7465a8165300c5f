package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration with priority order:
//  1. Environment variables (BIOMAPPER_ prefix)
//  2. Configuration file (config.yaml)
//  3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/biomapper/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("BIOMAPPER")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("cache_store.dsn", "biomapper:biomapper@tcp(127.0.0.1:3306)/biomapper_mappings?parseTime=true")
	v.SetDefault("cache_store.default_ttl_days", 90)
	v.SetDefault("cache_store.max_open_conns", 20)
	v.SetDefault("cache_store.max_idle_conns", 5)

	v.SetDefault("registry.dsn", "biomapper:biomapper@tcp(127.0.0.1:3306)/biomapper_registry?parseTime=true")
	v.SetDefault("registry.max_open_conns", 10)
	v.SetDefault("registry.max_idle_conns", 5)

	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.db", 0)
	v.SetDefault("valkey.ttl", 24*time.Hour)

	v.SetDefault("weaviate.scheme", "http")
	v.SetDefault("weaviate.host", "localhost")
	v.SetDefault("weaviate.port", 8080)
	v.SetDefault("weaviate.class", "CompoundEmbedding")

	v.SetDefault("dispatcher.default_timeout", 10*time.Second)
	v.SetDefault("dispatcher.breaker_max_failures", uint32(5))
	v.SetDefault("dispatcher.breaker_reset_interval", 30*time.Second)

	v.SetDefault("rag.vector_top_k", 10)
	v.SetDefault("rag.vector_score_threshold", 0.5)
	v.SetDefault("rag.annotation_max_concurrent_requests", 5)
	v.SetDefault("rag.llm_max_tokens", 500)
	v.SetDefault("rag.llm_temperature", 0.1)
	v.SetDefault("rag.llm_timeout", 30*time.Second)
	v.SetDefault("rag.pipeline_batch_size", 10)
	v.SetDefault("rag.pipeline_timeout_seconds", 60*time.Second)
	v.SetDefault("rag.response_cache_enabled", true)
	v.SetDefault("rag.response_cache_ttl", 12*time.Hour)

	v.SetDefault("monitor.ring_buffer_size", 1000)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("security.ca_bundle_path", "")
}

func validateConfig(cfg *Config) error {
	if cfg.CacheStore.DSN == "" {
		return fmt.Errorf("cache_store.dsn is required")
	}
	if cfg.RAG.LLMProvider != "" && cfg.RAG.LLMAPIKey == "" && cfg.RAG.LLMEndpoint == "" {
		return fmt.Errorf("rag.llm_api_key or rag.llm_endpoint is required when rag.llm_provider is set")
	}
	if cfg.Dispatcher.DefaultTimeout <= 0 {
		return fmt.Errorf("dispatcher.default_timeout must be positive")
	}
	return nil
}
