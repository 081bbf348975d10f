package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// defaultXAIBaseURL xAI 兼容 OpenAI 协议
const defaultXAIBaseURL = "https://api.x.ai/v1"

// EinoFactory 按模型 ID 惰性创建并缓存 Eino ChatModel
type EinoFactory struct {
	registry *ModelRegistry
	models   map[string]model.BaseChatModel
	mu       sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(registry *ModelRegistry) *EinoFactory {
	return &EinoFactory{
		registry: registry,
		models:   make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定模型的 ChatModel
func (f *EinoFactory) Get(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	f.mu.RLock()
	m, ok := f.models[modelID]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[modelID]; ok {
		return m, nil
	}

	desc, ok := f.registry.Lookup(modelID)
	if !ok {
		return nil, fmt.Errorf("model %s not found in registry", modelID)
	}

	chatModel, err := f.build(ctx, desc.Provider, desc.APIModel, desc.MaxTokens, desc.Temperature, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", modelID, err)
	}

	f.models[modelID] = chatModel
	return chatModel, nil
}

// Reset 清空缓存（配置热更新后调用）
func (f *EinoFactory) Reset() {
	f.mu.Lock()
	f.models = make(map[string]model.BaseChatModel)
	f.mu.Unlock()
}

func (f *EinoFactory) build(ctx context.Context, provider, apiModel string, maxTokens int, temperature float64, modelID string) (model.BaseChatModel, error) {
	apiKey := f.registry.credential(modelID)
	pc := f.registry.provider(provider)
	temp := ptrFloat32(float32(temperature))

	switch provider {
	case ProviderOpenAI, ProviderXAI:
		baseURL := pc.BaseURL
		if provider == ProviderXAI && baseURL == "" {
			baseURL = defaultXAIBaseURL
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     baseURL,
			Model:       apiModel,
			MaxTokens:   ptrInt(maxTokens),
			Temperature: temp,
			Timeout:     pc.Timeout,
		})

	case ProviderAnthropic:
		cfg := &claude.Config{
			APIKey:      apiKey,
			Model:       apiModel,
			MaxTokens:   maxTokensOr(maxTokens, 1024),
			Temperature: temp,
		}
		if pc.BaseURL != "" {
			cfg.BaseURL = &pc.BaseURL
		}
		return claude.NewChatModel(ctx, cfg)

	case ProviderGoogle:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       apiModel,
			MaxTokens:   ptrInt(maxTokens),
			Temperature: temp,
		})

	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedVendor, provider)
	}
}

func maxTokensOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func ptrInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func ptrFloat32(f float32) *float32 {
	if f <= 0 {
		return nil
	}
	return &f
}
