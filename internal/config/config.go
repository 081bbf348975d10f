// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig              `yaml:"app" mapstructure:"app"`
	Server        ServerConfig           `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig         `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig            `yaml:"cache" mapstructure:"cache"`
	LLM           LLMConfig              `yaml:"llm" mapstructure:"llm"`
	Models        map[string]ModelConfig `yaml:"models" mapstructure:"models"`
	Generation    GenerationConfig       `yaml:"generation" mapstructure:"generation"`
	Quota         QuotaConfig            `yaml:"quota" mapstructure:"quota"`
	Monitoring    MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
	System        SystemConfig           `yaml:"system" mapstructure:"system"`
	Messaging     MessagingConfig        `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig    `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig         `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Providers 按提供商族 (openai/anthropic/google/xai/mock) 配置凭证与端点
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ModelConfig 单个可选模型的描述
type ModelConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"`
	DisplayName       string        `yaml:"display_name" mapstructure:"display_name"`
	APIModel          string        `yaml:"api_model" mapstructure:"api_model"`
	SupportsStreaming bool          `yaml:"supports_streaming" mapstructure:"supports_streaming"`
	MaxTokens         int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64       `yaml:"temperature" mapstructure:"temperature"`
	InputCostPer1K    float64       `yaml:"input_cost_per_1k" mapstructure:"input_cost_per_1k"`
	OutputCostPer1K   float64       `yaml:"output_cost_per_1k" mapstructure:"output_cost_per_1k"`
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	Maintenance       bool          `yaml:"maintenance" mapstructure:"maintenance"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// CredentialEnv 为空时使用 llm.providers.<provider>.api_key
	CredentialEnv string `yaml:"credential_env" mapstructure:"credential_env"`
}

// GenerationConfig 生成调度配置
type GenerationConfig struct {
	DispatchMode    string        `yaml:"dispatch_mode" mapstructure:"dispatch_mode"`
	SessionTimeout  time.Duration `yaml:"session_timeout" mapstructure:"session_timeout"`
	AdapterTimeout  time.Duration `yaml:"adapter_timeout" mapstructure:"adapter_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxNames        int           `yaml:"max_names" mapstructure:"max_names"`
	MaxPromptLength int           `yaml:"max_prompt_length" mapstructure:"max_prompt_length"`
	DefaultModel    string        `yaml:"default_model" mapstructure:"default_model"`
	FallbackModel   string        `yaml:"fallback_model" mapstructure:"fallback_model"`
	AsyncDispatch   bool          `yaml:"async_dispatch" mapstructure:"async_dispatch"`
	Memoize         bool          `yaml:"memoize" mapstructure:"memoize"`
	MemoTTL         time.Duration `yaml:"memo_ttl" mapstructure:"memo_ttl"`
	Retry           RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig 适配器重试策略
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Initial     time.Duration `yaml:"initial" mapstructure:"initial"`
	Max         time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier  float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// QuotaConfig 限流与预算配置
type QuotaConfig struct {
	HourlyLimit     int          `yaml:"hourly_limit" mapstructure:"hourly_limit"`
	DailyLimit      int          `yaml:"daily_limit" mapstructure:"daily_limit"`
	MaxTokensPerDay int64        `yaml:"max_tokens_per_day" mapstructure:"max_tokens_per_day"`
	Budget          BudgetConfig `yaml:"budget" mapstructure:"budget"`
}

// BudgetConfig 花费预算（单位：分）
type BudgetConfig struct {
	DailyCents     int64   `yaml:"daily_cents" mapstructure:"daily_cents"`
	MonthlyCents   int64   `yaml:"monthly_cents" mapstructure:"monthly_cents"`
	AlertThreshold float64 `yaml:"alert_threshold" mapstructure:"alert_threshold"`
	Enforce        bool    `yaml:"enforce" mapstructure:"enforce"`
}

// MonitoringConfig 运行状况统计配置
type MonitoringConfig struct {
	HealthyThreshold  float64       `yaml:"healthy_threshold" mapstructure:"healthy_threshold"`
	DegradedThreshold float64       `yaml:"degraded_threshold" mapstructure:"degraded_threshold"`
	HealthWindow      time.Duration `yaml:"health_window" mapstructure:"health_window"`
	SnapshotTTL       time.Duration `yaml:"snapshot_ttl" mapstructure:"snapshot_ttl"`
	HealthTTL         time.Duration `yaml:"health_ttl" mapstructure:"health_ttl"`
	RefreshCron       string        `yaml:"refresh_cron" mapstructure:"refresh_cron"`
}

// SystemConfig 系统级开关
type SystemConfig struct {
	Maintenance bool `yaml:"maintenance" mapstructure:"maintenance"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 接口级限流配置（与生成配额相互独立）
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// DispatchSequential/DispatchConcurrent 调度模式
const (
	DispatchSequential = "sequential"
	DispatchConcurrent = "concurrent"
)
