package generation

import (
	"time"

	"namesmith-ai-api/internal/domain/entity"
)

// StatusNotFound 未知会话的状态值
const StatusNotFound = "not_found"

// ModelMetrics 单模型执行指标
type ModelMetrics struct {
	Status       entity.ModelRunStatus `json:"status"`
	NamesCount   int                   `json:"names_count"`
	DurationMs   int64                 `json:"duration_ms"`
	InputTokens  int                   `json:"input_tokens"`
	OutputTokens int                   `json:"output_tokens"`
	CostCents    int64                 `json:"cost_cents"`
	ErrorKind    entity.FailureKind    `json:"error_kind,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// StatusSnapshot 会话的时点状态
type StatusSnapshot struct {
	SessionID           string                  `json:"session_id"`
	Status              string                  `json:"status"`
	Results             map[string][]string     `json:"results"`
	StartedAt           *time.Time              `json:"started_at,omitempty"`
	CompletedAt         *time.Time              `json:"completed_at,omitempty"`
	TotalNamesGenerated int                     `json:"total_names_generated"`
	TotalCostCents      int64                   `json:"total_cost_cents"`
	PerModelMetrics     map[string]ModelMetrics `json:"per_model_metrics"`
	FailureReason       string                  `json:"failure_reason,omitempty"`
}

// Found 会话是否存在
func (s StatusSnapshot) Found() bool {
	return s.Status != StatusNotFound
}

// Terminal 会话是否已结束（不存在也视为结束）
func (s StatusSnapshot) Terminal() bool {
	return !s.Found() || entity.SessionStatus(s.Status).IsTerminal()
}

// NotFoundSnapshot 未知会话
func NotFoundSnapshot(id string) StatusSnapshot {
	return StatusSnapshot{
		SessionID:       id,
		Status:          StatusNotFound,
		Results:         map[string][]string{},
		PerModelMetrics: map[string]ModelMetrics{},
	}
}

// NewStatusSnapshot 由会话构造快照
func NewStatusSnapshot(s *entity.GenerationSession) StatusSnapshot {
	snap := StatusSnapshot{
		SessionID:           s.ID,
		Status:              string(s.Status),
		Results:             s.ResultsView(),
		StartedAt:           s.StartedAt,
		CompletedAt:         s.CompletedAt,
		TotalNamesGenerated: s.TotalNames(),
		TotalCostCents:      s.TotalCostCents(),
		PerModelMetrics:     make(map[string]ModelMetrics, len(s.Runs)),
		FailureReason:       s.FailureReason,
	}
	for id, r := range s.Runs {
		snap.PerModelMetrics[id] = ModelMetrics{
			Status:       r.Status,
			NamesCount:   len(r.Names),
			DurationMs:   r.DurationMs,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			CostCents:    r.CostCents,
			ErrorKind:    r.ErrorKind,
			Error:        r.ErrorMessage,
		}
	}
	return snap
}
