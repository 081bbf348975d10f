// Package llm 提供模型注册表与各提供商的生成适配器
package llm

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
)

// 提供商族
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderXAI       = "xai"
	ProviderMock      = "mock"
)

var (
	errUnknownModel       = errors.New("unknown model")
	errDisabled           = errors.New("model disabled")
	errMaintenance        = errors.New("model in maintenance")
	errMissingCredential  = errors.New("missing provider credential")
	errUnsupportedVendor  = errors.New("unsupported provider")
	supportedProviderList = []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderXAI, ProviderMock}
)

type registrySnapshot struct {
	models      map[string]entity.ModelDescriptor
	credentials map[string]string // model id -> api key
	providers   map[string]config.ProviderConfig
}

// ModelRegistry 模型注册表，Reload 原子替换整份快照
type ModelRegistry struct {
	snap atomic.Pointer[registrySnapshot]
	// lookupEnv 便于测试替换
	lookupEnv func(string) string
}

var _ service.ModelCatalog = (*ModelRegistry)(nil)

// NewModelRegistry 由配置构建注册表
func NewModelRegistry(cfg *config.Config) *ModelRegistry {
	r := &ModelRegistry{lookupEnv: os.Getenv}
	r.Reload(cfg)
	return r
}

// Reload 用新配置重建注册表
func (r *ModelRegistry) Reload(cfg *config.Config) {
	snap := &registrySnapshot{
		models:      make(map[string]entity.ModelDescriptor, len(cfg.Models)),
		credentials: make(map[string]string, len(cfg.Models)),
		providers:   make(map[string]config.ProviderConfig, len(cfg.LLM.Providers)),
	}
	for name, p := range cfg.LLM.Providers {
		snap.providers[strings.ToLower(name)] = p
	}

	for id, m := range cfg.Models {
		provider := strings.ToLower(m.Provider)
		timeout := m.Timeout
		if timeout <= 0 {
			timeout = snap.providers[provider].Timeout
		}
		snap.models[id] = entity.ModelDescriptor{
			ID:                id,
			Provider:          provider,
			DisplayName:       m.DisplayName,
			APIModel:          m.APIModel,
			SupportsStreaming: m.SupportsStreaming,
			MaxTokens:         m.MaxTokens,
			Temperature:       m.Temperature,
			InputCostPer1K:    m.InputCostPer1K,
			OutputCostPer1K:   m.OutputCostPer1K,
			Enabled:           m.Enabled,
			Maintenance:       m.Maintenance,
			Timeout:           timeout,
			CredentialEnv:     m.CredentialEnv,
		}

		key := snap.providers[provider].APIKey
		if m.CredentialEnv != "" {
			key = r.lookupEnv(m.CredentialEnv)
		}
		snap.credentials[id] = strings.TrimSpace(key)
	}

	r.snap.Store(snap)
}

// Lookup 查找模型描述
func (r *ModelRegistry) Lookup(id string) (entity.ModelDescriptor, bool) {
	d, ok := r.snap.Load().models[id]
	return d, ok
}

// Known 模型是否已注册
func (r *ModelRegistry) Known(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Available 返回可派发的模型描述
func (r *ModelRegistry) Available(id string) (entity.ModelDescriptor, error) {
	snap := r.snap.Load()
	d, ok := snap.models[id]
	if !ok {
		return d, service.NewUnavailableError(id, errUnknownModel)
	}
	if !d.Enabled {
		return d, service.NewUnavailableError(id, errDisabled)
	}
	if d.Maintenance {
		return d, service.NewUnavailableError(id, errMaintenance)
	}
	if !isSupportedProvider(d.Provider) {
		return d, service.NewUnavailableError(id, fmt.Errorf("%w: %s", errUnsupportedVendor, d.Provider))
	}
	if d.Provider != ProviderMock && snap.credentials[id] == "" {
		return d, service.NewUnavailableError(id, errMissingCredential)
	}
	return d, nil
}

// List 按 ID 排序返回全部模型
func (r *ModelRegistry) List() []entity.ModelDescriptor {
	snap := r.snap.Load()
	out := make([]entity.ModelDescriptor, 0, len(snap.models))
	for _, d := range snap.models {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// credential 获取模型凭证
func (r *ModelRegistry) credential(id string) string {
	return r.snap.Load().credentials[id]
}

// provider 获取提供商级配置
func (r *ModelRegistry) provider(name string) config.ProviderConfig {
	return r.snap.Load().providers[name]
}

func isSupportedProvider(p string) bool {
	for _, s := range supportedProviderList {
		if s == p {
			return true
		}
	}
	return false
}
