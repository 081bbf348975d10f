// Package service 定义领域服务端口
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"namesmith-ai-api/internal/domain/entity"
)

// GenerationRequest 单模型生成请求
type GenerationRequest struct {
	ModelID string
	// Prompt 已经过风格与模型优化的完整提示词
	Prompt     string
	Parameters map[string]any
	MaxNames   int

	// 以下字段仅用于缓存键与日志
	BasePrompt   string
	Mode         entity.GenerationMode
	DeepThinking bool
}

// GenerationResult 单模型生成结果
type GenerationResult struct {
	Names        []string
	InputTokens  int
	OutputTokens int
	// Memoized 结果来自缓存而非实时调用，Token 与 Latency 取自原始调用
	Memoized bool
	Latency  time.Duration
}

// Usage 转换为实体用量
func (r *GenerationResult) Usage() entity.TokenUsage {
	return entity.TokenUsage{InputTokens: r.InputTokens, OutputTokens: r.OutputTokens}
}

// NameGenerator 单个模型的生成适配器
type NameGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// NameGeneratorFunc 函数适配
type NameGeneratorFunc func(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

// Generate 实现 NameGenerator
func (f NameGeneratorFunc) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	return f(ctx, req)
}

// GenerationError 适配器的类型化错误
// Err 保留上游原始信息，仅用于日志；对外只暴露 Kind
type GenerationError struct {
	Kind  entity.FailureKind
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: model %s: %v", e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: model %s", e.Kind, e.Model)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// PublicMessage 面向调用方的通用描述
func (e *GenerationError) PublicMessage() string {
	switch e.Kind {
	case entity.FailureUnavailable:
		return "model unavailable"
	case entity.FailureTimeout:
		return "model timed out"
	default:
		return "provider error"
	}
}

// NewUnavailableError 模型不可用
func NewUnavailableError(model string, err error) *GenerationError {
	return &GenerationError{Kind: entity.FailureUnavailable, Model: model, Err: err}
}

// NewProviderError 上游调用失败
func NewProviderError(model string, err error) *GenerationError {
	return &GenerationError{Kind: entity.FailureProviderError, Model: model, Err: err}
}

// NewTimeoutError 调用超时
func NewTimeoutError(model string, err error) *GenerationError {
	return &GenerationError{Kind: entity.FailureTimeout, Model: model, Err: err}
}

// ClassifyError 将任意错误归类；非 GenerationError 视为上游错误
func ClassifyError(model string, err error) *GenerationError {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(model, err)
	}
	return NewProviderError(model, err)
}
