// Package quota 提供生成准入控制：用户频率限制、全局花费预算与 Token 日配额
package quota

import (
	"context"
	"fmt"
	"time"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/infrastructure/messaging"
	"namesmith-ai-api/internal/infrastructure/persistence/redis"
	apperrors "namesmith-ai-api/pkg/errors"
	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/metrics"
)

// ActionGenerate 生成会话的计数动作
const ActionGenerate = "generate"

const (
	WindowHourly  = "hourly"
	WindowDaily   = "daily"
	WindowMonthly = "monthly"
)

// RateCounter 多窗口计数器
type RateCounter interface {
	Acquire(ctx context.Context, subject, action string, windows []redis.Window) (*redis.AcquireResult, error)
	Usage(ctx context.Context, subject, action string, windows []redis.Window) ([]redis.WindowCount, error)
}

// SpendStore 全局花费累计
type SpendStore interface {
	Add(ctx context.Context, cents int64) (*redis.Spend, error)
	Current(ctx context.Context) (*redis.Spend, error)
	MarkAlerted(ctx context.Context, window, period string) (bool, error)
}

// AlertPublisher 预算告警下游
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, a *messaging.BudgetAlertMessage) (string, error)
}

// WindowUsage 单个窗口的用量视图
type WindowUsage struct {
	Window    string `json:"window"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Exceeded  bool   `json:"exceeded"`
}

// BudgetStatus 预算视图（分）
type BudgetStatus struct {
	DayCents      int64 `json:"day_cents"`
	DayLimit      int64 `json:"day_limit"`
	MonthCents    int64 `json:"month_cents"`
	MonthLimit    int64 `json:"month_limit"`
	DayAlerting   bool  `json:"day_alerting"`
	MonthAlerting bool  `json:"month_alerting"`
}

// Admission 准入结果
type Admission struct {
	Windows        []WindowUsage `json:"windows,omitempty"`
	Budget         *BudgetStatus `json:"budget,omitempty"`
	EstimatedCents int64         `json:"estimated_cents"`
}

// Gate 准入控制；计数器故障时放行
type Gate struct {
	counter RateCounter
	spend   SpendStore
	alerts  AlertPublisher
	cfg     *config.Manager
}

// NewGate 创建准入控制；alerts 可为 nil
func NewGate(counter RateCounter, spend SpendStore, alerts AlertPublisher, cfg *config.Manager) *Gate {
	return &Gate{counter: counter, spend: spend, alerts: alerts, cfg: cfg}
}

func rateWindows(q config.QuotaConfig) []redis.Window {
	var out []redis.Window
	if q.HourlyLimit > 0 {
		out = append(out, redis.Window{Name: WindowHourly, Size: time.Hour, Limit: q.HourlyLimit})
	}
	if q.DailyLimit > 0 {
		out = append(out, redis.Window{Name: WindowDaily, Size: 24 * time.Hour, Limit: q.DailyLimit})
	}
	return out
}

func toUsage(counts []redis.WindowCount) []WindowUsage {
	out := make([]WindowUsage, len(counts))
	for i, c := range counts {
		remaining := c.Limit - c.Used
		if remaining < 0 {
			remaining = 0
		}
		out[i] = WindowUsage{
			Window:    c.Name,
			Limit:     c.Limit,
			Used:      c.Used,
			Remaining: remaining,
			Exceeded:  c.Used >= c.Limit,
		}
	}
	return out
}

// CheckRate 只读查询用户各窗口用量
func (g *Gate) CheckRate(ctx context.Context, userID string) ([]WindowUsage, error) {
	windows := rateWindows(g.cfg.Current().Quota)
	if len(windows) == 0 {
		return []WindowUsage{}, nil
	}
	counts, err := g.counter.Usage(ctx, userID, ActionGenerate, windows)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to read rate usage")
	}
	return toUsage(counts), nil
}

// Admit 判断是否允许用户新建会话；通过时占用一次频率配额
// 顺序：维护模式 → 预算（只读）→ 频率（原子占用），避免被预算拒绝的请求消耗频率配额
func (g *Gate) Admit(ctx context.Context, userID string, estimatedCents int64) (*Admission, error) {
	cfg := g.cfg.Current()
	adm := &Admission{EstimatedCents: estimatedCents}

	if cfg.System.Maintenance {
		metrics.AdmissionRejections.WithLabelValues("maintenance").Inc()
		return nil, apperrors.ErrMaintenance
	}

	budget, err := g.checkBudget(ctx, cfg.Quota.Budget, estimatedCents)
	if err != nil {
		return nil, err
	}
	adm.Budget = budget

	windows := rateWindows(cfg.Quota)
	if len(windows) == 0 {
		return adm, nil
	}
	res, err := g.counter.Acquire(ctx, userID, ActionGenerate, windows)
	if err != nil {
		logger.Error(ctx, "rate counter unavailable, admitting", err, "user_id", userID)
		return adm, nil
	}
	adm.Windows = toUsage(res.Counts)

	if !res.Allowed {
		metrics.AdmissionRejections.WithLabelValues("rate_limited").Inc()
		detail := res.Exceeded
		for _, w := range adm.Windows {
			if w.Window == res.Exceeded {
				detail = fmt.Sprintf("%s limit reached: %d/%d", w.Window, w.Used, w.Limit)
			}
		}
		logger.Info(ctx, "session rejected by rate limit", "user_id", userID, "window", res.Exceeded)
		return nil, apperrors.ErrRateLimited.WithDetail(detail)
	}
	return adm, nil
}

func (g *Gate) checkBudget(ctx context.Context, b config.BudgetConfig, estimatedCents int64) (*BudgetStatus, error) {
	if b.DailyCents <= 0 && b.MonthlyCents <= 0 {
		return nil, nil
	}

	spend, err := g.spend.Current(ctx)
	if err != nil {
		logger.Error(ctx, "budget counter unavailable, admitting", err)
		return nil, nil
	}

	status := &BudgetStatus{
		DayCents:      spend.DayCents,
		DayLimit:      b.DailyCents,
		MonthCents:    spend.MonthCents,
		MonthLimit:    b.MonthlyCents,
		DayAlerting:   crossed(spend.DayCents, b.DailyCents, b.AlertThreshold),
		MonthAlerting: crossed(spend.MonthCents, b.MonthlyCents, b.AlertThreshold),
	}
	g.evaluateAlerts(ctx, b, spend)

	over := func(spent, limit int64) bool {
		return limit > 0 && spent+estimatedCents > limit
	}
	if over(spend.DayCents, b.DailyCents) || over(spend.MonthCents, b.MonthlyCents) {
		if b.Enforce {
			metrics.AdmissionRejections.WithLabelValues("budget").Inc()
			return nil, apperrors.ErrBudgetExceeded.WithDetail(fmt.Sprintf(
				"spent %d/%d cents today, %d/%d cents this month, estimate %d",
				spend.DayCents, b.DailyCents, spend.MonthCents, b.MonthlyCents, estimatedCents))
		}
		logger.Warn(ctx, "budget would be exceeded, enforcement disabled",
			"day_cents", spend.DayCents, "month_cents", spend.MonthCents, "estimate_cents", estimatedCents)
	}
	return status, nil
}

// RecordSpend 累加实际花费并检查告警阈值
func (g *Gate) RecordSpend(ctx context.Context, cents int64) error {
	if cents <= 0 {
		return nil
	}
	spend, err := g.spend.Add(ctx, cents)
	if err != nil {
		return err
	}
	g.evaluateAlerts(ctx, g.cfg.Current().Quota.Budget, spend)
	return nil
}

// Budget 当前预算视图
func (g *Gate) Budget(ctx context.Context) (*BudgetStatus, error) {
	b := g.cfg.Current().Quota.Budget
	spend, err := g.spend.Current(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to read budget")
	}
	return &BudgetStatus{
		DayCents:      spend.DayCents,
		DayLimit:      b.DailyCents,
		MonthCents:    spend.MonthCents,
		MonthLimit:    b.MonthlyCents,
		DayAlerting:   crossed(spend.DayCents, b.DailyCents, b.AlertThreshold),
		MonthAlerting: crossed(spend.MonthCents, b.MonthlyCents, b.AlertThreshold),
	}, nil
}

func crossed(spent, limit int64, threshold float64) bool {
	if limit <= 0 || threshold <= 0 {
		return false
	}
	return float64(spent) >= float64(limit)*threshold
}

// evaluateAlerts 超过告警阈值时每个周期告警一次，不影响准入
func (g *Gate) evaluateAlerts(ctx context.Context, b config.BudgetConfig, spend *redis.Spend) {
	check := func(window, period string, spent, limit int64) {
		if !crossed(spent, limit, b.AlertThreshold) {
			return
		}
		first, err := g.spend.MarkAlerted(ctx, window, period)
		if err != nil || !first {
			return
		}

		ratio := float64(spent) / float64(limit)
		metrics.BudgetAlerts.WithLabelValues(window).Inc()
		logger.Warn(ctx, "budget alert threshold crossed",
			"window", window, "period", period, "spent_cents", spent, "limit_cents", limit, "ratio", ratio)

		if g.alerts == nil {
			return
		}
		if _, err := g.alerts.PublishBudgetAlert(ctx, &messaging.BudgetAlertMessage{
			Window:     window,
			Period:     period,
			SpentCents: spent,
			LimitCents: limit,
			Ratio:      ratio,
		}); err != nil {
			logger.Error(ctx, "failed to publish budget alert", err, "window", window)
		}
	}
	check(WindowDaily, spend.Day, spend.DayCents, b.DailyCents)
	check(WindowMonthly, spend.Month, spend.MonthCents, b.MonthlyCents)
}
