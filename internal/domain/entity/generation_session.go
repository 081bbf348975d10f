// Package entity 定义领域实体
package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition 非法的状态迁移
var ErrInvalidTransition = errors.New("invalid session status transition")

// GenerationMode 生成风格
type GenerationMode string

const (
	ModeCreative     GenerationMode = "creative"
	ModeProfessional GenerationMode = "professional"
	ModeBrandable    GenerationMode = "brandable"
	ModeTechFocused  GenerationMode = "tech_focused"
	ModeOther        GenerationMode = "other"
)

// ParseGenerationMode 解析生成风格，无法识别的值归为 other
func ParseGenerationMode(s string) GenerationMode {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	switch GenerationMode(v) {
	case ModeCreative, ModeProfessional, ModeBrandable, ModeTechFocused:
		return GenerationMode(v)
	default:
		return ModeOther
	}
}

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusPartial   SessionStatus = "partial"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal 是否为终态
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusPartial, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// Valid 是否为已定义的状态
func (s SessionStatus) Valid() bool {
	return s == SessionStatusPending || s == SessionStatusRunning || s.IsTerminal()
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusPending: {SessionStatusRunning, SessionStatusFailed},
	SessionStatusRunning: {
		SessionStatusCompleted,
		SessionStatusPartial,
		SessionStatusFailed,
		SessionStatusCancelled,
	},
}

// CanTransition 状态机：pending→running|failed，running→completed|partial|failed|cancelled
func CanTransition(from, to SessionStatus) bool {
	for _, s := range sessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ModelRunStatus 单模型执行状态
type ModelRunStatus string

const (
	ModelRunPending     ModelRunStatus = "pending"
	ModelRunRunning     ModelRunStatus = "running"
	ModelRunSucceeded   ModelRunStatus = "succeeded"
	ModelRunFailed      ModelRunStatus = "failed"
	ModelRunUnavailable ModelRunStatus = "unavailable"
	ModelRunCancelled   ModelRunStatus = "cancelled"
)

// IsTerminal 是否为终态
func (s ModelRunStatus) IsTerminal() bool {
	return s != ModelRunPending && s != ModelRunRunning
}

// FailureKind 单模型失败类型
type FailureKind string

const (
	FailureUnavailable   FailureKind = "unavailable"
	FailureProviderError FailureKind = "provider_error"
	FailureTimeout       FailureKind = "timeout"
	FailureCancelled     FailureKind = "cancelled"
)

// TokenUsage Token 用量
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total 总 Token 数
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ModelRun 单个模型在会话内的执行记录
type ModelRun struct {
	ModelID      string         `json:"model_id"`
	Status       ModelRunStatus `json:"status"`
	Names        []string       `json:"names,omitempty"`
	ErrorKind    FailureKind    `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	CostCents    int64          `json:"cost_cents"`
	DurationMs   int64          `json:"duration_ms"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func (r *ModelRun) open() bool {
	return r.Status == ModelRunPending || r.Status == ModelRunRunning
}

// GenerationSession 一次跨多模型的命名生成会话
// 实体本身非并发安全，由负责执行的协调器持有并串行修改
type GenerationSession struct {
	ID              string               `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID          string               `json:"user_id" gorm:"type:varchar(64);index;not null"`
	ProjectID       string               `json:"project_id,omitempty" gorm:"type:varchar(64);index"`
	Prompt          string               `json:"prompt" gorm:"type:text;not null"`
	RequestedModels []string             `json:"requested_models" gorm:"type:text;serializer:json"`
	Mode            GenerationMode       `json:"mode" gorm:"type:varchar(32);not null"`
	DeepThinking    bool                 `json:"deep_thinking" gorm:"not null;default:false"`
	Parameters      map[string]any       `json:"parameters,omitempty" gorm:"type:text;serializer:json"`
	Status          SessionStatus        `json:"status" gorm:"type:varchar(16);index;not null"`
	FailureReason   string               `json:"failure_reason,omitempty" gorm:"type:text"`
	Runs            map[string]*ModelRun `json:"runs" gorm:"type:text;serializer:json"`
	CreatedAt       time.Time            `json:"created_at" gorm:"index"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func (GenerationSession) TableName() string {
	return "generation_sessions"
}

// NewGenerationSession 创建会话，模型列表去重并保持首次出现的顺序
func NewGenerationSession(userID, projectID, prompt string, models []string, mode GenerationMode, deepThinking bool, params map[string]any) *GenerationSession {
	now := time.Now().UTC()
	ordered := DedupeModels(models)
	runs := make(map[string]*ModelRun, len(ordered))
	for _, m := range ordered {
		runs[m] = &ModelRun{ModelID: m, Status: ModelRunPending}
	}
	if params == nil {
		params = map[string]any{}
	}
	return &GenerationSession{
		ID:              uuid.NewString(),
		UserID:          strings.TrimSpace(userID),
		ProjectID:       strings.TrimSpace(projectID),
		Prompt:          strings.TrimSpace(prompt),
		RequestedModels: ordered,
		Mode:            mode,
		DeepThinking:    deepThinking,
		Parameters:      params,
		Status:          SessionStatusPending,
		Runs:            runs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// DedupeModels 去除空白与重复的模型 ID
func DedupeModels(models []string) []string {
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (s *GenerationSession) transition(to SessionStatus, now time.Time) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

// IsTerminal 会话是否已结束
func (s *GenerationSession) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Run 获取模型执行记录
func (s *GenerationSession) Run(model string) (*ModelRun, bool) {
	r, ok := s.Runs[model]
	return r, ok
}

// Start 开始执行
func (s *GenerationSession) Start(now time.Time) error {
	if err := s.transition(SessionStatusRunning, now); err != nil {
		return err
	}
	s.StartedAt = &now
	return nil
}

// MarkUnavailable 标记派发前被过滤的模型
func (s *GenerationSession) MarkUnavailable(model, reason string) error {
	if s.Status != SessionStatusPending {
		return fmt.Errorf("%w: cannot filter models while %s", ErrInvalidTransition, s.Status)
	}
	r, ok := s.Runs[model]
	if !ok || r.Status != ModelRunPending {
		return fmt.Errorf("model %q is not a pending run", model)
	}
	r.Status = ModelRunUnavailable
	r.ErrorKind = FailureUnavailable
	r.ErrorMessage = reason
	return nil
}

// BeginModel 标记模型调用已发出
func (s *GenerationSession) BeginModel(model string, now time.Time) bool {
	if s.Status != SessionStatusRunning {
		return false
	}
	r, ok := s.Runs[model]
	if !ok || r.Status != ModelRunPending {
		return false
	}
	r.Status = ModelRunRunning
	r.StartedAt = &now
	s.UpdatedAt = now
	return true
}

// RecordSuccess 记录模型成功结果；会话已离开 running 时丢弃并返回 false
func (s *GenerationSession) RecordSuccess(model string, names []string, usage TokenUsage, costCents int64, duration time.Duration, now time.Time) bool {
	if s.Status != SessionStatusRunning {
		return false
	}
	r, ok := s.Runs[model]
	if !ok || !r.open() {
		return false
	}
	r.Status = ModelRunSucceeded
	r.Names = append([]string{}, names...)
	r.InputTokens = usage.InputTokens
	r.OutputTokens = usage.OutputTokens
	r.CostCents = costCents
	r.DurationMs = duration.Milliseconds()
	r.CompletedAt = &now
	s.UpdatedAt = now
	return true
}

// RecordFailure 记录模型失败；会话已离开 running 时丢弃并返回 false
func (s *GenerationSession) RecordFailure(model string, kind FailureKind, message string, duration time.Duration, now time.Time) bool {
	if s.Status != SessionStatusRunning {
		return false
	}
	r, ok := s.Runs[model]
	if !ok || !r.open() {
		return false
	}
	r.Status = ModelRunFailed
	r.ErrorKind = kind
	r.ErrorMessage = message
	r.DurationMs = duration.Milliseconds()
	r.CompletedAt = &now
	s.UpdatedAt = now
	return true
}

// Finalize 根据各模型结果计算最终状态
func (s *GenerationSession) Finalize(now time.Time) error {
	if s.Status != SessionStatusRunning {
		return fmt.Errorf("%w: cannot finalize from %s", ErrInvalidTransition, s.Status)
	}

	succeeded, other := 0, 0
	for _, r := range s.Runs {
		if r.Status == ModelRunSucceeded {
			succeeded++
			continue
		}
		if r.open() {
			r.Status = ModelRunCancelled
			r.ErrorKind = FailureCancelled
			r.CompletedAt = &now
		}
		other++
	}

	to := SessionStatusCompleted
	switch {
	case succeeded == 0:
		to = SessionStatusFailed
		if s.FailureReason == "" {
			s.FailureReason = "no model produced a usable result"
		}
	case other > 0:
		to = SessionStatusPartial
	}

	if err := s.transition(to, now); err != nil {
		return err
	}
	s.CompletedAt = &now
	return nil
}

// FailImmediately 无可用模型时直接失败，不经过 running
func (s *GenerationSession) FailImmediately(reason string, now time.Time) error {
	if s.Status != SessionStatusPending {
		return fmt.Errorf("%w: cannot fail immediately from %s", ErrInvalidTransition, s.Status)
	}
	if err := s.transition(SessionStatusFailed, now); err != nil {
		return err
	}
	s.FailureReason = reason
	s.CompletedAt = &now
	return nil
}

// Cancel 用户取消；已完成的模型结果保留
func (s *GenerationSession) Cancel(now time.Time) error {
	if s.Status != SessionStatusRunning {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, s.Status)
	}
	for _, r := range s.Runs {
		if r.open() {
			r.Status = ModelRunCancelled
			r.ErrorKind = FailureCancelled
			r.CompletedAt = &now
		}
	}
	if err := s.transition(SessionStatusCancelled, now); err != nil {
		return err
	}
	s.CompletedAt = &now
	return nil
}

// Abandon 全局超时：仍在执行的模型记为超时取消，再按已有结果收尾
func (s *GenerationSession) Abandon(now time.Time) error {
	if s.Status != SessionStatusRunning {
		return fmt.Errorf("%w: cannot abandon from %s", ErrInvalidTransition, s.Status)
	}
	for _, r := range s.Runs {
		if r.open() {
			r.Status = ModelRunCancelled
			r.ErrorKind = FailureTimeout
			r.ErrorMessage = "session timeout"
			r.CompletedAt = &now
		}
	}
	if s.FailureReason == "" {
		s.FailureReason = "session timeout"
	}
	return s.Finalize(now)
}

// Resume 接管中断的 running 会话：在途模型退回 pending，
// 返回仍需派发的模型（按请求顺序），已有结果保持不变
func (s *GenerationSession) Resume(now time.Time) ([]string, error) {
	if s.Status != SessionStatusRunning {
		return nil, fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, s.Status)
	}
	var out []string
	for _, m := range s.RequestedModels {
		r, ok := s.Runs[m]
		if !ok || !r.open() {
			continue
		}
		r.Status = ModelRunPending
		r.StartedAt = nil
		out = append(out, m)
	}
	s.UpdatedAt = now
	return out, nil
}

// Results 只包含成功模型的结果；缺失与空列表可区分
func (s *GenerationSession) Results() map[string][]string {
	out := make(map[string][]string)
	for id, r := range s.Runs {
		if r.Status == ModelRunSucceeded {
			out[id] = append([]string{}, r.Names...)
		}
	}
	return out
}

// ResultsView 返回所有可派发模型的结果视图，未产出的模型为 nil
func (s *GenerationSession) ResultsView() map[string][]string {
	out := make(map[string][]string, len(s.Runs))
	for id, r := range s.Runs {
		if r.Status == ModelRunUnavailable {
			continue
		}
		if r.Status == ModelRunSucceeded {
			out[id] = append([]string{}, r.Names...)
		} else {
			out[id] = nil
		}
	}
	return out
}

// DispatchableModels 未被过滤的模型（按请求顺序）
func (s *GenerationSession) DispatchableModels() []string {
	out := make([]string, 0, len(s.RequestedModels))
	for _, m := range s.RequestedModels {
		if r, ok := s.Runs[m]; ok && r.Status != ModelRunUnavailable {
			out = append(out, m)
		}
	}
	return out
}

// TotalNames 成功模型产出的名字总数
func (s *GenerationSession) TotalNames() int {
	n := 0
	for _, r := range s.Runs {
		if r.Status == ModelRunSucceeded {
			n += len(r.Names)
		}
	}
	return n
}

// TotalCostCents 成功模型的总花费
func (s *GenerationSession) TotalCostCents() int64 {
	var c int64
	for _, r := range s.Runs {
		if r.Status == ModelRunSucceeded {
			c += r.CostCents
		}
	}
	return c
}

// TotalTokens 成功模型的总 Token
func (s *GenerationSession) TotalTokens() int64 {
	var t int64
	for _, r := range s.Runs {
		if r.Status == ModelRunSucceeded {
			t += int64(r.InputTokens + r.OutputTokens)
		}
	}
	return t
}

// Duration 会话耗时；未开始为 0，未结束按 now 计算
func (s *GenerationSession) Duration(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt)
}

// Clone 深拷贝，用于向外发布快照
func (s *GenerationSession) Clone() *GenerationSession {
	cp := *s
	cp.RequestedModels = append([]string(nil), s.RequestedModels...)
	cp.Parameters = make(map[string]any, len(s.Parameters))
	for k, v := range s.Parameters {
		cp.Parameters[k] = v
	}
	cp.Runs = make(map[string]*ModelRun, len(s.Runs))
	for k, r := range s.Runs {
		rc := *r
		rc.Names = append([]string(nil), r.Names...)
		cp.Runs[k] = &rc
	}
	return &cp
}
