package wire

import (
	"namesmith-ai-api/internal/application/generation"
	"namesmith-ai-api/internal/application/monitoring"
	"namesmith-ai-api/internal/application/pricing"
	"namesmith-ai-api/internal/application/quota"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/infrastructure/llm"
	"namesmith-ai-api/internal/infrastructure/messaging"
	"namesmith-ai-api/internal/infrastructure/persistence/postgres"
	"namesmith-ai-api/internal/infrastructure/persistence/redis"
	"namesmith-ai-api/internal/interfaces/http/handler"
	"namesmith-ai-api/internal/interfaces/http/router"
)

// defaultStreamMaxLen Stream 默认保留长度
const defaultStreamMaxLen = 100000

// Core 生成链路依赖容器
type Core struct {
	Config    *config.Manager
	Postgres  *postgres.Client
	Redis     *redis.Client
	Cache     *redis.Cache
	Counter   *redis.Counter
	CancelBus *redis.CancelBus
	Producer  *messaging.Producer
	Registry  *llm.ModelRegistry
	Resolver  *llm.AdapterResolver
	Estimator *pricing.Estimator
	Gate      *quota.Gate
	Tokens    *quota.TokenQuota
	Service   *generation.Service
	Reporter  *monitoring.Reporter
}

// App api-gateway 依赖容器
type App struct {
	Core   *Core
	Router *router.Router
}

// Worker gen-worker 依赖容器
type Worker struct {
	Core     *Core
	Consumer *messaging.Consumer
}

// ConsumerName Stream 消费者名称
type ConsumerName string

// ProvideConfig 提供当前配置快照（仅用于启动期构造）
func ProvideConfig(mgr *config.Manager) *config.Config {
	return mgr.Current()
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideModelRegistry 提供模型注册表
func ProvideModelRegistry(cfg *config.Config) *llm.ModelRegistry {
	return llm.NewModelRegistry(cfg)
}

// ProvideAdapterResolver 提供适配器解析器，并订阅配置热更新
func ProvideAdapterResolver(registry *llm.ModelRegistry, factory *llm.EinoFactory, memo llm.MemoStore, mgr *config.Manager) *llm.AdapterResolver {
	resolver := llm.NewAdapterResolver(registry, factory, memo, mgr)
	mgr.OnChange(resolver.OnConfigChange)
	return resolver
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rdb *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.Pinger{
		"postgres": pg,
		"redis":    rdb,
	})
}

// ProvideDispatchConsumer 提供派发队列消费者
func ProvideDispatchConsumer(redisClient *redis.Client, cfg *config.Config, name ConsumerName) *messaging.Consumer {
	return messaging.NewConsumer(redisClient.Redis(), consumerConfig(cfg, messaging.StreamDispatch, string(name)))
}

// NewAlertConsumer 创建预算告警消费者
func NewAlertConsumer(redisClient *redis.Client, cfg *config.Config, name ConsumerName) *messaging.Consumer {
	return messaging.NewConsumer(redisClient.Redis(), consumerConfig(cfg, messaging.StreamBudgetAlert, string(name)))
}

func consumerConfig(cfg *config.Config, stream messaging.Stream, name string) messaging.ConsumerConfig {
	rs := cfg.Messaging.RedisStream
	return messaging.ConsumerConfig{
		Stream:        stream,
		Group:         messaging.ConsumerGroupGenWorker,
		ConsumerName:  name,
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	}
}
