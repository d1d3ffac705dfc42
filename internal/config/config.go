// Package config loads and exposes the application's configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Conf is the process-wide configuration, populated once by Init.
var Conf Config

// Config mirrors config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Taxonomy      TaxonomyConfig      `mapstructure:"taxonomy"`
	Session       SessionConfig       `mapstructure:"session"`
	Search        SearchConfig        `mapstructure:"search"`
	AIProviders   []AIProviderConfig  `mapstructure:"ai_providers"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds both relational and cache backend settings.
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig holds the MySQL DSN.
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds settings for the bearer-token compatibility layer.
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig holds Kafka broker and topic settings for the job queue.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig holds the Apache Tika server URL.
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig holds Elasticsearch connection and index settings.
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig holds object-storage connection settings.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig holds settings for the default embedding provider.
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig holds settings for the default analysis/chat LLM provider.
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig configures sampling parameters.
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig configures the prompt envelope used for analysis/chat.
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// TaxonomyConfig configures the taxonomy in-memory snapshot.
type TaxonomyConfig struct {
	SnapshotRefreshS int `mapstructure:"snapshot_refresh_s"`
}

// SessionConfig configures the Session Core.
type SessionConfig struct {
	TTLSeconds                          int    `mapstructure:"ttl_s"`
	CookieSecure                        bool   `mapstructure:"cookie_secure"`
	RequireAuth                         bool   `mapstructure:"require_auth"`
	AppPassword                         string `mapstructure:"app_password"`
	EncryptionSecret                    string `mapstructure:"encryption_secret"`
	AllowUnauthenticatedOnSessionFailure bool  `mapstructure:"allow_unauthenticated_on_session_failure"`
	LoginRateLimitPerMinute             int    `mapstructure:"login_rate_limit_per_minute"`
}

// SearchConfig configures the Search & Relevance engine.
type SearchConfig struct {
	VectorDim            int  `mapstructure:"vector_dim"`
	SearchCacheTTLSeconds int  `mapstructure:"search_cache_ttl_s"`
	FacetCacheTTLSeconds  int  `mapstructure:"facet_cache_ttl_s"`
	UseEnhancedRelevance  bool `mapstructure:"use_enhanced_relevance"`
}

// AIProviderConfig describes one entry in the AI Gateway's ordered provider list.
type AIProviderConfig struct {
	Name         string   `mapstructure:"name"`
	Capabilities []string `mapstructure:"capabilities"`
	BaseURL      string   `mapstructure:"base_url"`
	APIKey       string   `mapstructure:"api_key"`
	Model        string   `mapstructure:"model"`
}

// PipelineConfig configures the Ingestion Pipeline.
type PipelineConfig struct {
	WorkerConcurrency      int  `mapstructure:"worker_concurrency"`
	UploadBatchStaggerS    int  `mapstructure:"upload_batch_stagger_s"`
	MaxFileSizeBytes       int64 `mapstructure:"max_file_size_bytes"`
	JobVisibilityTimeoutS  int  `mapstructure:"job_visibility_timeout_s"`
	SchedulerIntervalS     int  `mapstructure:"scheduler_interval_s"`
	StuckThresholdS        int  `mapstructure:"stuck_threshold_s"`
	RetryBaseS             int  `mapstructure:"retry_base_s"`
	RetryCapS              int  `mapstructure:"retry_cap_s"`
	RetryMaxAttempts       int  `mapstructure:"retry_max_attempts"`
	RequireEmbedding       bool `mapstructure:"require_embedding"`
	QueueDepthWatermark    int  `mapstructure:"queue_depth_watermark"`
}

// Init reads the YAML config file at path and unmarshals it into Conf.
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("failed to read config file: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %w", err))
	}

	applyDefaults(&Conf)
}

func applyDefaults(c *Config) {
	if c.Search.VectorDim == 0 {
		c.Search.VectorDim = 1536
	}
	if c.Pipeline.WorkerConcurrency == 0 {
		c.Pipeline.WorkerConcurrency = 4
	}
	if c.Pipeline.UploadBatchStaggerS == 0 {
		c.Pipeline.UploadBatchStaggerS = 30
	}
	if c.Pipeline.MaxFileSizeBytes == 0 {
		c.Pipeline.MaxFileSizeBytes = 104857600
	}
	if c.Pipeline.JobVisibilityTimeoutS == 0 {
		c.Pipeline.JobVisibilityTimeoutS = 300
	}
	if c.Pipeline.SchedulerIntervalS == 0 {
		c.Pipeline.SchedulerIntervalS = 120
	}
	if c.Pipeline.StuckThresholdS == 0 {
		c.Pipeline.StuckThresholdS = 600
	}
	if c.Pipeline.RetryBaseS == 0 {
		c.Pipeline.RetryBaseS = 5
	}
	if c.Pipeline.RetryCapS == 0 {
		c.Pipeline.RetryCapS = 300
	}
	if c.Pipeline.RetryMaxAttempts == 0 {
		c.Pipeline.RetryMaxAttempts = 5
	}
	if c.Pipeline.QueueDepthWatermark == 0 {
		c.Pipeline.QueueDepthWatermark = 1000
	}
	if c.Search.SearchCacheTTLSeconds == 0 {
		c.Search.SearchCacheTTLSeconds = 1800
	}
	if c.Search.FacetCacheTTLSeconds == 0 {
		c.Search.FacetCacheTTLSeconds = 86400
	}
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = 86400
	}
	if c.Session.LoginRateLimitPerMinute == 0 {
		c.Session.LoginRateLimitPerMinute = 10
	}
	if c.Taxonomy.SnapshotRefreshS == 0 {
		c.Taxonomy.SnapshotRefreshS = 300
	}
}
