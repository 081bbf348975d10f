//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"namesmith-ai-api/internal/application/generation"
	"namesmith-ai-api/internal/application/monitoring"
	"namesmith-ai-api/internal/application/pricing"
	"namesmith-ai-api/internal/application/quota"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/repository"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/internal/infrastructure/llm"
	"namesmith-ai-api/internal/infrastructure/messaging"
	"namesmith-ai-api/internal/infrastructure/persistence/postgres"
	"namesmith-ai-api/internal/infrastructure/persistence/redis"
	"namesmith-ai-api/internal/interfaces/http/handler"
	"namesmith-ai-api/internal/interfaces/http/middleware"
	"namesmith-ai-api/internal/interfaces/http/router"
)

// InitializeCore 初始化生成链路（api-gateway 与 gen-worker 共用）
func InitializeCore(ctx context.Context, mgr *config.Manager) (*Core, func(), error) {
	wire.Build(CoreSet)
	return nil, nil, nil
}

// InitializeApp 初始化 api-gateway
func InitializeApp(ctx context.Context, mgr *config.Manager) (*App, func(), error) {
	wire.Build(
		CoreSet,
		HandlerSet,
		router.New,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 gen-worker
func InitializeWorker(ctx context.Context, mgr *config.Manager, name ConsumerName) (*Worker, func(), error) {
	wire.Build(
		CoreSet,
		ProvideDispatchConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 仓储
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewSessionRepository,
	postgres.NewUsageRepository,
	postgres.NewTxManager,
	wire.Bind(new(repository.SessionRepository), new(*postgres.SessionRepository)),
	wire.Bind(new(repository.UsageRepository), new(*postgres.UsageRepository)),
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
)

// RedisSet Redis 缓存、计数器与取消广播
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewCounter,
	redis.NewSpendCounter,
	redis.NewCancelBus,
	wire.Bind(new(llm.MemoStore), new(*redis.Cache)),
	wire.Bind(new(monitoring.SnapshotCache), new(*redis.Cache)),
	wire.Bind(new(quota.RateCounter), new(*redis.Counter)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.Counter)),
	wire.Bind(new(quota.SpendStore), new(*redis.SpendCounter)),
	wire.Bind(new(generation.CancelBroadcaster), new(*redis.CancelBus)),
)

// MessagingSet Redis Streams 生产者
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(generation.Dispatcher), new(*messaging.Producer)),
	wire.Bind(new(quota.AlertPublisher), new(*messaging.Producer)),
)

// LLMSet 模型注册表与适配器
var LLMSet = wire.NewSet(
	ProvideConfig,
	ProvideModelRegistry,
	llm.NewEinoFactory,
	ProvideAdapterResolver,
	wire.Bind(new(service.ModelCatalog), new(*llm.ModelRegistry)),
	wire.Bind(new(pricing.RateSource), new(*llm.ModelRegistry)),
	wire.Bind(new(monitoring.ModelLister), new(*llm.ModelRegistry)),
	wire.Bind(new(generation.AdapterResolver), new(*llm.AdapterResolver)),
)

// ApplicationSet 应用层服务
var ApplicationSet = wire.NewSet(
	pricing.NewEstimator,
	quota.NewGate,
	quota.NewTokenQuota,
	quota.NewUsageRecorder,
	generation.NewCoordinator,
	generation.NewService,
	monitoring.NewReporter,
	wire.Struct(new(generation.ServiceDeps), "*"),
	wire.Bind(new(generation.CostCalculator), new(*pricing.Estimator)),
	wire.Bind(new(generation.Quoter), new(*pricing.Estimator)),
	wire.Bind(new(generation.Admitter), new(*quota.Gate)),
	wire.Bind(new(generation.TokenChecker), new(*quota.TokenQuota)),
	wire.Bind(new(service.UsageRecorder), new(*quota.UsageRecorder)),
)

// CoreSet 生成链路全部依赖
var CoreSet = wire.NewSet(
	PostgresSet,
	RedisSet,
	MessagingSet,
	LLMSet,
	ApplicationSet,
	wire.Struct(new(Core), "*"),
)

// HandlerSet HTTP 处理器
var HandlerSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewSessionHandler,
	handler.NewCatalogHandler,
	handler.NewQuotaHandler,
	handler.NewDashboardHandler,
	wire.Struct(new(router.Handlers), "*"),
	wire.Bind(new(handler.SessionService), new(*generation.Service)),
	wire.Bind(new(handler.Quoter), new(*pricing.Estimator)),
	wire.Bind(new(handler.QuotaReader), new(*quota.Gate)),
	wire.Bind(new(handler.TokenChecker), new(*quota.TokenQuota)),
	wire.Bind(new(handler.StatsReader), new(*monitoring.Reporter)),
)
