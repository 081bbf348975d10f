// Package monitoring 提供生成系统的运行状况统计与模型健康度
package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/repository"
	"namesmith-ai-api/pkg/logger"
)

const (
	snapshotCacheKey = "monitoring:snapshot"
	healthCacheKey   = "monitoring:model_health"
)

// HealthStatus 模型健康度
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthIdle      HealthStatus = "idle"
)

// Thresholds 健康度阈值（成功率）
type Thresholds struct {
	Healthy  float64
	Degraded float64
}

// ClassifyHealth 根据成功率分级；无调用时为 idle
func ClassifyHealth(successRate float64, attempts int64, th Thresholds) HealthStatus {
	switch {
	case attempts <= 0:
		return HealthIdle
	case successRate >= th.Healthy:
		return HealthHealthy
	case successRate >= th.Degraded:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// Snapshot 系统运行快照
type Snapshot struct {
	SessionsByStatus    map[entity.SessionStatus]int64 `json:"sessions_by_status"`
	NamesGeneratedToday int64                          `json:"names_generated_today"`
	CostCentsToday      int64                          `json:"cost_cents_today"`
	AvgResponseMs       float64                        `json:"avg_response_ms"`
	SuccessRate         map[string]float64             `json:"success_rate"`
	QueueDepth          int64                          `json:"queue_depth"`
	GeneratedAt         time.Time                      `json:"generated_at"`
}

// ModelHealth 单模型健康度
type ModelHealth struct {
	ModelID      string       `json:"model_id"`
	DisplayName  string       `json:"display_name,omitempty"`
	Status       HealthStatus `json:"status"`
	SuccessRate  float64      `json:"success_rate"`
	Attempts     int64        `json:"attempts"`
	AvgLatencyMs float64      `json:"avg_latency_ms"`
	Enabled      bool         `json:"enabled"`
	Maintenance  bool         `json:"maintenance"`
}

// UserStats 用户当日统计
type UserStats struct {
	UserID        string                   `json:"user_id"`
	SessionsToday int64                    `json:"sessions_today"`
	Today         *repository.UsageSummary `json:"today"`
	Last30Days    *repository.UsageSummary `json:"last_30_days"`
}

// ModelLister 模型列表来源
type ModelLister interface {
	List() []entity.ModelDescriptor
}

// SnapshotCache 统计结果缓存
type SnapshotCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// successWindows 成功率统计窗口
var successWindows = []struct {
	name string
	size time.Duration
}{
	{"1h", time.Hour},
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
}

// Reporter 从仓储计算统计并经缓存提供；不参与生成调度
type Reporter struct {
	sessions repository.SessionRepository
	usage    repository.UsageRepository
	models   ModelLister
	cache    SnapshotCache
	cfg      *config.Manager
	now      func() time.Time
}

// NewReporter 创建统计器；cache 为 nil 时每次直接计算
func NewReporter(sessions repository.SessionRepository, usage repository.UsageRepository, models ModelLister, cache SnapshotCache, cfg *config.Manager) *Reporter {
	return &Reporter{
		sessions: sessions,
		usage:    usage,
		models:   models,
		cache:    cache,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reporter) ttls() (snapshot, health time.Duration) {
	m := r.cfg.Current().Monitoring
	snapshot, health = m.SnapshotTTL, m.HealthTTL
	if snapshot <= 0 {
		snapshot = time.Minute
	}
	if health <= 0 {
		health = 5 * time.Minute
	}
	return snapshot, health
}

// cached 读穿缓存；缓存不可用时直接计算
func cached[T any](ctx context.Context, cache SnapshotCache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if cache == nil {
		return load(ctx)
	}
	var computed bool
	data, err := cache.GetOrLoadSafe(ctx, key, ttl, func() (interface{}, error) {
		computed = true
		return load(ctx)
	})
	if err != nil {
		if computed {
			var zero T
			return zero, err
		}
		logger.Warn(ctx, "stats cache unavailable, computing directly", "key", key, "error", err.Error())
		return load(ctx)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Warn(ctx, "stats cache entry corrupt, computing directly", "key", key, "error", err.Error())
		return load(ctx)
	}
	return out, nil
}

// Snapshot 系统运行快照
func (r *Reporter) Snapshot(ctx context.Context) (*Snapshot, error) {
	ttl, _ := r.ttls()
	return cached(ctx, r.cache, snapshotCacheKey, ttl, r.computeSnapshot)
}

// ModelHealth 各模型健康度，按模型 ID 排序
func (r *Reporter) ModelHealth(ctx context.Context) ([]ModelHealth, error) {
	_, ttl := r.ttls()
	return cached(ctx, r.cache, healthCacheKey, ttl, r.computeModelHealth)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *Reporter) computeSnapshot(ctx context.Context) (*Snapshot, error) {
	now := r.now()

	byStatus, err := r.sessions.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	today, err := r.usage.Summary(ctx, "", repository.Since(startOfDay(now), now))
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SessionsByStatus:    byStatus,
		NamesGeneratedToday: today.Names,
		CostCentsToday:      today.CostCents,
		AvgResponseMs:       today.AvgLatencyMs,
		SuccessRate:         make(map[string]float64, len(successWindows)),
		QueueDepth:          byStatus[entity.SessionStatusPending] + byStatus[entity.SessionStatusRunning],
		GeneratedAt:         now,
	}
	for _, w := range successWindows {
		finished, err := r.sessions.CountFinishedSince(ctx, now.Add(-w.size))
		if err != nil {
			return nil, err
		}
		snap.SuccessRate[w.name] = sessionSuccessRate(finished)
	}
	return snap, nil
}

// sessionSuccessRate 产出结果的会话（completed/partial）占已结束会话的比例，不计取消
func sessionSuccessRate(finished map[entity.SessionStatus]int64) float64 {
	ok := finished[entity.SessionStatusCompleted] + finished[entity.SessionStatusPartial]
	total := ok + finished[entity.SessionStatusFailed]
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}

func (r *Reporter) computeModelHealth(ctx context.Context) ([]ModelHealth, error) {
	m := r.cfg.Current().Monitoring
	window := m.HealthWindow
	if window <= 0 {
		window = time.Hour
	}
	th := Thresholds{Healthy: m.HealthyThreshold, Degraded: m.DegradedThreshold}

	stats, err := r.usage.ModelStats(ctx, r.now().Add(-window))
	if err != nil {
		return nil, err
	}
	byModel := make(map[string]repository.ModelUsageStats, len(stats))
	for _, s := range stats {
		byModel[s.ModelID] = s
	}

	descs := r.models.List()
	out := make([]ModelHealth, 0, len(descs))
	for _, d := range descs {
		s := byModel[d.ID]
		var rate float64
		if s.Attempts > 0 {
			rate = float64(s.Successes) / float64(s.Attempts)
		}
		out = append(out, ModelHealth{
			ModelID:      d.ID,
			DisplayName:  d.DisplayName,
			Status:       ClassifyHealth(rate, s.Attempts, th),
			SuccessRate:  rate,
			Attempts:     s.Attempts,
			AvgLatencyMs: s.AvgLatencyMs,
			Enabled:      d.Enabled,
			Maintenance:  d.Maintenance,
		})
	}
	return out, nil
}

// UserStats 用户当日与近 30 天用量
func (r *Reporter) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	now := r.now()
	day := startOfDay(now)

	sessions, err := r.sessions.CountCreatedSince(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	today, err := r.usage.Summary(ctx, userID, repository.Since(day, now))
	if err != nil {
		return nil, err
	}
	month, err := r.usage.Summary(ctx, userID, repository.Since(now.AddDate(0, 0, -30), now))
	if err != nil {
		return nil, err
	}
	return &UserStats{UserID: userID, SessionsToday: sessions, Today: today, Last30Days: month}, nil
}

// Warm 重新计算并写入缓存
func (r *Reporter) Warm(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	snapTTL, healthTTL := r.ttls()

	snap, err := r.computeSnapshot(ctx)
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, snapshotCacheKey, snap, snapTTL); err != nil {
		return err
	}

	health, err := r.computeModelHealth(ctx)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, healthCacheKey, health, healthTTL)
}
