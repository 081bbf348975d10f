package llm

import (
	"context"
	"time"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
)

// mockLatency Mock 适配器的模拟延迟
const mockLatency = 50 * time.Millisecond

// AdapterResolver 组装模型适配器：基础适配器 → 重试 → 记忆化
type AdapterResolver struct {
	registry *ModelRegistry
	factory  *EinoFactory
	memo     MemoStore
	cfg      *config.Manager
}

// NewAdapterResolver 创建适配器解析器；memo 为 nil 时不做记忆化
func NewAdapterResolver(registry *ModelRegistry, factory *EinoFactory, memo MemoStore, cfg *config.Manager) *AdapterResolver {
	return &AdapterResolver{registry: registry, factory: factory, memo: memo, cfg: cfg}
}

// Resolve 返回模型对应的适配器
func (r *AdapterResolver) Resolve(ctx context.Context, desc entity.ModelDescriptor) (service.NameGenerator, error) {
	gen := r.cfg.Current().Generation

	var base service.NameGenerator
	if desc.Provider == ProviderMock {
		base = NewMockAdapter(desc, mockLatency)
	} else {
		cm, err := r.factory.Get(ctx, desc.ID)
		if err != nil {
			return nil, service.NewUnavailableError(desc.ID, err)
		}
		base = NewChatModelAdapter(cm, desc)
	}

	adapter := service.NameGenerator(NewRetryingAdapter(base, PolicyFromConfig(gen.Retry)))
	if gen.Memoize && r.memo != nil {
		adapter = NewMemoizingAdapter(adapter, r.memo, gen.MemoTTL)
	}
	return adapter, nil
}

// OnConfigChange 配置热更新：重建注册表并丢弃已缓存的客户端
func (r *AdapterResolver) OnConfigChange(cfg *config.Config) {
	r.registry.Reload(cfg)
	r.factory.Reset()
}
