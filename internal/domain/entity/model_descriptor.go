// Package entity 定义领域实体
package entity

import "time"

// ModelDescriptor 可选模型的静态描述（来自配置，不随会话持久化）
type ModelDescriptor struct {
	ID                string        `json:"id"`
	Provider          string        `json:"provider"`
	DisplayName       string        `json:"display_name"`
	APIModel          string        `json:"api_model"`
	SupportsStreaming bool          `json:"supports_streaming"`
	MaxTokens         int           `json:"max_tokens"`
	Temperature       float64       `json:"temperature"`
	InputCostPer1K    float64       `json:"input_cost_per_1k"`
	OutputCostPer1K   float64       `json:"output_cost_per_1k"`
	Enabled           bool          `json:"enabled"`
	Maintenance       bool          `json:"maintenance"`
	Timeout           time.Duration `json:"timeout"`
	CredentialEnv     string        `json:"-"`
}
