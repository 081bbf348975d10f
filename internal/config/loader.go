// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir 默认配置目录
const DefaultDir = "configs"

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	return LoadFrom(DefaultDir)
}

// LoadFrom 从指定目录加载配置
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnv(string(content))

	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
// 未定义且无默认值的变量保留原样，便于排查
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// normalize 统一大小写并补齐模型级缺省值
func normalize(cfg *Config) {
	cfg.Generation.DispatchMode = strings.ToLower(strings.TrimSpace(cfg.Generation.DispatchMode))
	if cfg.Generation.DispatchMode != DispatchConcurrent {
		cfg.Generation.DispatchMode = DispatchSequential
	}
	for id, m := range cfg.Models {
		m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
		if m.APIModel == "" {
			m.APIModel = id
		}
		if m.DisplayName == "" {
			m.DisplayName = id
		}
		cfg.Models[id] = m
	}
}

// Validate 校验配置的基本一致性
func Validate(cfg *Config) error {
	if cfg.Generation.SessionTimeout <= 0 {
		return fmt.Errorf("generation.session_timeout must be positive")
	}
	if cfg.Generation.AdapterTimeout <= 0 {
		return fmt.Errorf("generation.adapter_timeout must be positive")
	}
	if cfg.Quota.Budget.AlertThreshold < 0 || cfg.Quota.Budget.AlertThreshold > 1 {
		return fmt.Errorf("quota.budget.alert_threshold must be within [0,1], got %v", cfg.Quota.Budget.AlertThreshold)
	}
	if cfg.Monitoring.DegradedThreshold > cfg.Monitoring.HealthyThreshold {
		return fmt.Errorf("monitoring.degraded_threshold must not exceed healthy_threshold")
	}
	for id, m := range cfg.Models {
		if m.Provider == "" {
			return fmt.Errorf("models.%s.provider is required", id)
		}
	}
	if dm := cfg.Generation.DefaultModel; dm != "" {
		if _, ok := cfg.Models[dm]; !ok {
			return fmt.Errorf("generation.default_model %q is not a configured model", dm)
		}
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "namesmith-ai-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "150s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "namesmith")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 50)
	v.SetDefault("database.postgres.max_idle_conns", 10)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 100)
	v.SetDefault("cache.redis.min_idle_conns", 10)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	// 生成调度默认值
	v.SetDefault("generation.dispatch_mode", DispatchSequential)
	v.SetDefault("generation.session_timeout", "120s")
	v.SetDefault("generation.adapter_timeout", "30s")
	v.SetDefault("generation.poll_interval", "2s")
	v.SetDefault("generation.max_names", 10)
	v.SetDefault("generation.max_prompt_length", 2000)
	v.SetDefault("generation.async_dispatch", false)
	v.SetDefault("generation.memoize", true)
	v.SetDefault("generation.memo_ttl", "24h")
	v.SetDefault("generation.retry.max_attempts", 2)
	v.SetDefault("generation.retry.initial", "500ms")
	v.SetDefault("generation.retry.max", "5s")
	v.SetDefault("generation.retry.multiplier", 2.0)

	// 配额默认值
	v.SetDefault("quota.hourly_limit", 50)
	v.SetDefault("quota.daily_limit", 200)
	v.SetDefault("quota.max_tokens_per_day", 0)
	v.SetDefault("quota.budget.daily_cents", 0)
	v.SetDefault("quota.budget.monthly_cents", 0)
	v.SetDefault("quota.budget.alert_threshold", 0.8)
	v.SetDefault("quota.budget.enforce", true)

	// 统计默认值
	v.SetDefault("monitoring.healthy_threshold", 0.95)
	v.SetDefault("monitoring.degraded_threshold", 0.80)
	v.SetDefault("monitoring.health_window", "1h")
	v.SetDefault("monitoring.snapshot_ttl", "60s")
	v.SetDefault("monitoring.health_ttl", "300s")
	v.SetDefault("monitoring.refresh_cron", "@every 1m")

	v.SetDefault("system.maintenance", false)

	// 消息队列默认值
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "30s")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
	v.SetDefault("security.rate_limit.burst", 40)
}
