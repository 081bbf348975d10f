package llm

import (
	"context"
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/pkg/metrics"
	"namesmith-ai-api/pkg/tracer"
)

var callbacksOnce sync.Once

// InitCallbacks 注册进程级 ChatModel 回调。
// 重试中的每一次上游请求各自产生一个 llm.upstream span 并计数
func InitCallbacks() {
	callbacksOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(cbtemplate.NewHandlerHelper().
			ChatModel(upstreamCallbacks()).
			Handler())
	})
}

func upstreamCallbacks() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocallbacks.RunInfo, in *model.CallbackInput) context.Context {
			labels := service.CallLabelsFromContext(ctx)
			attrs := []attribute.KeyValue{
				attribute.String("llm.provider", labels.Provider),
				attribute.String("llm.model_id", labels.ModelID),
				attribute.String("generation.session_id", labels.SessionID),
			}
			if in != nil && in.Config != nil {
				attrs = append(attrs, attribute.String("llm.api_model", in.Config.Model))
			}
			if info != nil {
				attrs = append(attrs, attribute.String("eino.component", string(info.Component)))
			}
			ctx, _ = tracer.Start(ctx, "llm.upstream", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocallbacks.RunInfo, out *model.CallbackOutput) context.Context {
			span := trace.SpanFromContext(ctx)
			defer span.End()

			countUpstream(ctx, "success")
			if out != nil && out.TokenUsage != nil {
				span.SetAttributes(
					attribute.Int("llm.prompt_tokens", out.TokenUsage.PromptTokens),
					attribute.Int("llm.completion_tokens", out.TokenUsage.CompletionTokens),
				)
			}
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocallbacks.RunInfo, err error) context.Context {
			span := trace.SpanFromContext(ctx)
			defer span.End()

			countUpstream(ctx, "error")
			tracer.RecordError(span, err)
			return ctx
		},
	}
}

func countUpstream(ctx context.Context, status string) {
	metrics.LLMUpstreamRequests.WithLabelValues(service.CallLabelsFromContext(ctx).Provider, status).Inc()
}
