// Package pricing 提供模型调用的费用计算与预估（纯函数，无 IO）
package pricing

import (
	"fmt"
	"math"
	"unicode/utf8"

	"namesmith-ai-api/internal/domain/entity"
)

const (
	// DefaultOutputRatio 预估时输出 Token 约为输入的一半
	DefaultOutputRatio = 0.5

	// InstructionOverheadTokens 提示词优化附加说明的大致 Token 数
	InstructionOverheadTokens = 120

	charsPerToken = 4
)

// Rate 每千 Token 的价格（分）
type Rate struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// RateOf 从模型描述提取费率
func RateOf(d entity.ModelDescriptor) Rate {
	return Rate{InputPer1K: d.InputCostPer1K, OutputPer1K: d.OutputCostPer1K}
}

// Cost 计算费用，四舍五入到整数分
func Cost(rate Rate, inputTokens, outputTokens int) int64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	raw := float64(inputTokens)/1000*rate.InputPer1K + float64(outputTokens)/1000*rate.OutputPer1K
	return int64(math.Round(raw))
}

// EstimateTokens 按约 4 字符/Token 估算文本 Token 数
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	t := (n + charsPerToken - 1) / charsPerToken
	if t < 1 {
		t = 1
	}
	return t
}

// EstimatedCost 预估费用
type EstimatedCost struct {
	ModelID      string `json:"model_id"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Cents        int64  `json:"cents"`
}

// Quote 一次会话的费用报价
type Quote struct {
	Items      []EstimatedCost `json:"items"`
	TotalCents int64           `json:"total_cents"`
}

// RateSource 费率来源
type RateSource interface {
	Lookup(id string) (entity.ModelDescriptor, bool)
}

// Estimator 基于模型注册表的费用计算器
type Estimator struct {
	rates       RateSource
	OutputRatio float64
}

// NewEstimator 创建费用计算器
func NewEstimator(rates RateSource) *Estimator {
	return &Estimator{rates: rates, OutputRatio: DefaultOutputRatio}
}

func (e *Estimator) rate(modelID string) (Rate, error) {
	d, ok := e.rates.Lookup(modelID)
	if !ok {
		return Rate{}, fmt.Errorf("unknown model %q", modelID)
	}
	return RateOf(d), nil
}

// Cost 计算指定模型的实际费用
func (e *Estimator) Cost(modelID string, inputTokens, outputTokens int) (int64, error) {
	r, err := e.rate(modelID)
	if err != nil {
		return 0, err
	}
	return Cost(r, inputTokens, outputTokens), nil
}

// Estimate 按输入 Token 预估费用
func (e *Estimator) Estimate(modelID string, expectedInputTokens int) (EstimatedCost, error) {
	r, err := e.rate(modelID)
	if err != nil {
		return EstimatedCost{}, err
	}
	if expectedInputTokens < 0 {
		expectedInputTokens = 0
	}
	ratio := e.OutputRatio
	if ratio <= 0 {
		ratio = DefaultOutputRatio
	}
	out := int(math.Round(float64(expectedInputTokens) * ratio))
	return EstimatedCost{
		ModelID:      modelID,
		InputTokens:  expectedInputTokens,
		OutputTokens: out,
		Cents:        Cost(r, expectedInputTokens, out),
	}, nil
}

// Quote 为一组模型和同一提示词报价
func (e *Estimator) Quote(models []string, prompt string) (*Quote, error) {
	in := EstimateTokens(prompt) + InstructionOverheadTokens
	q := &Quote{Items: make([]EstimatedCost, 0, len(models))}
	for _, m := range models {
		est, err := e.Estimate(m, in)
		if err != nil {
			return nil, err
		}
		q.Items = append(q.Items, est)
		q.TotalCents += est.Cents
	}
	return q, nil
}
