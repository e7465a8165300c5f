// Package config defines biomapper's configuration schema.
package config

import "time"

// Config is the top-level configuration for the mapping-resolution engine.
type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	CacheStore CacheStoreConfig `mapstructure:"cache_store" yaml:"cache_store"`
	Registry   RegistryConfig   `mapstructure:"registry" yaml:"registry"`
	Valkey     ValkeyConfig     `mapstructure:"valkey" yaml:"valkey"`
	Weaviate   WeaviateConfig   `mapstructure:"weaviate" yaml:"weaviate"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" yaml:"dispatcher"`
	RAG        RAGConfig        `mapstructure:"rag" yaml:"rag"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// SecurityConfig configures TLS trust for outbound HTTP clients.
type SecurityConfig struct {
	CABundlePath string `mapstructure:"ca_bundle_path" yaml:"ca_bundle_path"`
}

// CacheStoreConfig configures the durable mapping cache (the "Mapping
// schema" of spec.md §6).
type CacheStoreConfig struct {
	DSN             string `mapstructure:"dsn" yaml:"dsn"`
	DefaultTTLDays  int    `mapstructure:"default_ttl_days" yaml:"default_ttl_days"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// RegistryConfig configures the resource-metadata registry (the "Metadata
// schema" of spec.md §6). It may point at the same DSN as CacheStore or a
// separate database; the split is recommended but not required.
type RegistryConfig struct {
	DSN          string `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// ValkeyConfig configures the fast-cache used to front the RAG LLM
// arbitration stage.
type ValkeyConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// WeaviateConfig configures the vector store used for the RAG vector-search
// stage and, via cross-reference traversal, the knowledge-graph adapter.
type WeaviateConfig struct {
	Scheme string `mapstructure:"scheme" yaml:"scheme"`
	Host   string `mapstructure:"host" yaml:"host"`
	Port   int    `mapstructure:"port" yaml:"port"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Class  string `mapstructure:"class" yaml:"class"`
}

// DispatcherConfig configures dispatch-level defaults.
type DispatcherConfig struct {
	DefaultTimeout       time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	BreakerMaxFailures   uint32        `mapstructure:"breaker_max_failures" yaml:"breaker_max_failures"`
	BreakerResetInterval time.Duration `mapstructure:"breaker_reset_interval" yaml:"breaker_reset_interval"`
}

// RAGConfig carries the configuration keys enumerated in spec.md §6.
type RAGConfig struct {
	VectorHost       string  `mapstructure:"vector_host" yaml:"vector_host"`
	VectorPort       int     `mapstructure:"vector_port" yaml:"vector_port"`
	VectorCollection string  `mapstructure:"vector_collection" yaml:"vector_collection"`
	VectorAPIKey     string  `mapstructure:"vector_api_key" yaml:"vector_api_key"`
	VectorTopK       int     `mapstructure:"vector_top_k" yaml:"vector_top_k"`
	VectorScoreThreshold float64 `mapstructure:"vector_score_threshold" yaml:"vector_score_threshold"`

	AnnotationMaxConcurrentRequests int `mapstructure:"annotation_max_concurrent_requests" yaml:"annotation_max_concurrent_requests"`

	LLMProvider    string        `mapstructure:"llm_provider" yaml:"llm_provider"`
	LLMModelName   string        `mapstructure:"llm_model_name" yaml:"llm_model_name"`
	LLMAPIKey      string        `mapstructure:"llm_api_key" yaml:"llm_api_key"`
	LLMEndpoint    string        `mapstructure:"llm_endpoint" yaml:"llm_endpoint"`
	LLMMaxTokens   int           `mapstructure:"llm_max_tokens" yaml:"llm_max_tokens"`
	LLMTemperature float64       `mapstructure:"llm_temperature" yaml:"llm_temperature"`
	LLMTimeout     time.Duration `mapstructure:"llm_timeout" yaml:"llm_timeout"`

	PipelineBatchSize      int           `mapstructure:"pipeline_batch_size" yaml:"pipeline_batch_size"`
	PipelineTimeoutSeconds time.Duration `mapstructure:"pipeline_timeout_seconds" yaml:"pipeline_timeout_seconds"`

	ResponseCacheEnabled bool          `mapstructure:"response_cache_enabled" yaml:"response_cache_enabled"`
	ResponseCacheTTL     time.Duration `mapstructure:"response_cache_ttl" yaml:"response_cache_ttl"`
}

// MonitorConfig configures the in-process event sink (spec.md §4.7).
type MonitorConfig struct {
	RingBufferSize int `mapstructure:"ring_buffer_size" yaml:"ring_buffer_size"`
}
