package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"namesmith-ai-api/internal/application/prompt"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/pkg/logger"
)

// ChatModelAdapter 基于 Eino ChatModel 的生成适配器
type ChatModelAdapter struct {
	model model.BaseChatModel
	desc  entity.ModelDescriptor
}

// NewChatModelAdapter 创建适配器
func NewChatModelAdapter(m model.BaseChatModel, desc entity.ModelDescriptor) *ChatModelAdapter {
	return &ChatModelAdapter{model: m, desc: desc}
}

// Generate 调用模型并解析候选名称
func (a *ChatModelAdapter) Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
	span := trace.SpanFromContext(ctx)

	msg, err := a.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(prompt.SystemPrompt),
		schema.UserMessage(req.Prompt),
	})
	if err != nil {
		logger.Warn(ctx, "llm call failed",
			"provider", a.desc.Provider,
			"model", a.desc.ID,
			"error", err.Error(),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, service.NewTimeoutError(a.desc.ID, err)
		}
		return nil, service.NewProviderError(a.desc.ID, err)
	}
	if msg == nil {
		return nil, service.NewProviderError(a.desc.ID, fmt.Errorf("empty response"))
	}

	names := ParseCandidates(msg.Content, req.MaxNames)
	if len(names) == 0 {
		return nil, service.NewProviderError(a.desc.ID, fmt.Errorf("no candidate names in response"))
	}

	res := &service.GenerationResult{Names: names}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		res.InputTokens = msg.ResponseMeta.Usage.PromptTokens
		res.OutputTokens = msg.ResponseMeta.Usage.CompletionTokens
	}

	span.SetAttributes(
		attribute.Int("llm.names", len(names)),
		attribute.Int("llm.prompt_tokens", res.InputTokens),
		attribute.Int("llm.completion_tokens", res.OutputTokens),
	)
	return res, nil
}
