package monitoring

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"namesmith-ai-api/pkg/logger"
)

// Scheduler 按 cron 表达式定期预热统计缓存
type Scheduler struct {
	cron     *cron.Cron
	reporter *Reporter
}

// NewScheduler 创建预热调度；expr 支持 @every 描述符
func NewScheduler(ctx context.Context, reporter *Reporter, expr string) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		if err := reporter.Warm(ctx); err != nil {
			logger.Warn(ctx, "stats warm-up failed", "error", err.Error())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh cron %q: %w", expr, err)
	}
	return &Scheduler{cron: c, reporter: reporter}, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
