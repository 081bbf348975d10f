// Package generation 提供多模型命名生成的调度与会话生命周期管理
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"namesmith-ai-api/internal/application/prompt"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
	apperrors "namesmith-ai-api/pkg/errors"
	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/metrics"
	"namesmith-ai-api/pkg/tracer"
)

const (
	defaultSessionTimeout = 120 * time.Second
	defaultAdapterTimeout = 30 * time.Second
)

// AdapterResolver 按模型描述返回适配器
type AdapterResolver interface {
	Resolve(ctx context.Context, desc entity.ModelDescriptor) (service.NameGenerator, error)
}

// CostCalculator 按实际用量计费
type CostCalculator interface {
	Cost(modelID string, inputTokens, outputTokens int) (int64, error)
}

// UpdateFunc 会话状态变化回调，收到的是快照副本
type UpdateFunc func(ctx context.Context, snapshot *entity.GenerationSession)

// Coordinator 把一次会话派发到各模型适配器并汇总结果
type Coordinator struct {
	catalog  service.ModelCatalog
	adapters AdapterResolver
	recorder service.UsageRecorder
	costs    CostCalculator
	cfg      *config.Manager
	now      func() time.Time
}

// NewCoordinator 创建协调器；recorder 可为 nil
func NewCoordinator(catalog service.ModelCatalog, adapters AdapterResolver, recorder service.UsageRecorder, costs CostCalculator, cfg *config.Manager) *Coordinator {
	return &Coordinator{
		catalog:  catalog,
		adapters: adapters,
		recorder: recorder,
		costs:    costs,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execution 一次会话执行的句柄，会话只通过它被修改
type Execution struct {
	mu      sync.Mutex
	session *entity.GenerationSession
	seq     uint64
	stop    context.CancelFunc

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}

	pubMu     sync.Mutex
	published uint64
	onUpdate  UpdateFunc
	now       func() time.Time
}

type snapshot struct {
	seq     uint64
	session *entity.GenerationSession
}

// Prepare 为会话创建执行句柄；会话此后归句柄所有
func (c *Coordinator) Prepare(session *entity.GenerationSession, onUpdate UpdateFunc) *Execution {
	return &Execution{
		session:  session,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
		onUpdate: onUpdate,
		now:      c.now,
	}
}

// SessionID 会话 ID
func (e *Execution) SessionID() string {
	return e.session.ID
}

// UserID 会话所属用户
func (e *Execution) UserID() string {
	return e.session.UserID
}

// Snapshot 返回当前会话状态的副本
func (e *Execution) Snapshot() *entity.GenerationSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Done 执行结束（终态已发布）后关闭
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Cancel 协作式取消；仅 running 会话可取消，已完成模型的结果保留
func (e *Execution) Cancel(ctx context.Context) bool {
	e.mu.Lock()
	if e.session.Status != entity.SessionStatusRunning {
		e.mu.Unlock()
		return false
	}
	if err := e.session.Cancel(e.now()); err != nil {
		e.mu.Unlock()
		return false
	}
	e.cancelOnce.Do(func() { close(e.cancelCh) })
	if e.stop != nil {
		e.stop()
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	logger.Info(ctx, "generation session cancelled", "session_id", snap.session.ID)
	e.publish(ctx, snap)
	return true
}

func (e *Execution) snapshotLocked() snapshot {
	e.seq++
	return snapshot{seq: e.seq, session: e.session.Clone()}
}

// publish 按序发布快照，较旧的快照不会覆盖较新的
func (e *Execution) publish(ctx context.Context, snap snapshot) {
	if e.onUpdate == nil {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if snap.seq <= e.published {
		return
	}
	e.published = snap.seq
	e.onUpdate(ctx, snap.session)
}

func (e *Execution) update(ctx context.Context, fn func(s *entity.GenerationSession) bool) bool {
	e.mu.Lock()
	changed := fn(e.session)
	var snap snapshot
	if changed {
		snap = e.snapshotLocked()
	}
	e.mu.Unlock()
	if changed {
		e.publish(ctx, snap)
	}
	return changed
}

// Run 创建执行句柄并同步执行到终态
func (c *Coordinator) Run(ctx context.Context, session *entity.GenerationSession, onUpdate UpdateFunc) (*entity.GenerationSession, error) {
	exec := c.Prepare(session, onUpdate)
	err := c.Execute(ctx, exec)
	return exec.Snapshot(), err
}

// FilterModels 将当前不可用的模型标记为 unavailable，返回可派发模型的描述（按请求顺序）
func (c *Coordinator) FilterModels(session *entity.GenerationSession) []entity.ModelDescriptor {
	var out []entity.ModelDescriptor
	for _, id := range session.RequestedModels {
		run, ok := session.Run(id)
		if !ok || run.Status != entity.ModelRunPending {
			continue
		}
		desc, err := c.catalog.Available(id)
		if err != nil {
			_ = session.MarkUnavailable(id, unavailableReason(err))
			continue
		}
		out = append(out, desc)
	}
	return out
}

// resumeModels 重新打开中断会话的在途模型；已不可用的模型记为失败
func (c *Coordinator) resumeModels(s *entity.GenerationSession, now time.Time) ([]entity.ModelDescriptor, error) {
	if s.StartedAt == nil {
		return nil, fmt.Errorf("%w: running session has no start time", entity.ErrInvalidTransition)
	}
	models, err := s.Resume(now)
	if err != nil {
		return nil, err
	}
	var out []entity.ModelDescriptor
	for _, id := range models {
		desc, err := c.catalog.Available(id)
		if err != nil {
			s.RecordFailure(id, entity.FailureUnavailable, unavailableReason(err), 0, now)
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

func unavailableReason(err error) string {
	var ge *service.GenerationError
	if errors.As(err, &ge) && ge.Err != nil {
		return ge.Err.Error()
	}
	return err.Error()
}

// Execute 执行会话直到终态。单模型失败不会作为错误返回；
// 仅在没有任何可用模型时返回 NoModelsAvailable。
// running 会话按中断处理：只重新派发未结束的模型，超过会话超时直接收尾
func (c *Coordinator) Execute(ctx context.Context, e *Execution) error {
	defer close(e.done)

	ctx = logger.WithContext(ctx, logger.SessionIDKey, e.session.ID)
	ctx = logger.WithContext(ctx, logger.UserIDKey, e.session.UserID)
	ctx, span := tracer.Start(ctx, "generation.Coordinator.Execute", tracer.SessionAttrs(e.session.ID, e.session.UserID))
	defer span.End()

	gen := c.cfg.Current().Generation
	mode := gen.DispatchMode
	if mode != config.DispatchConcurrent {
		mode = config.DispatchSequential
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	timeout := gen.SessionTimeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}

	var descs []entity.ModelDescriptor
	var startErr error
	var resumed bool
	var remaining time.Duration
	started := e.update(ctx, func(s *entity.GenerationSession) bool {
		now := c.now()
		if s.Status == entity.SessionStatusRunning {
			// 接管中断的会话，截止时间仍从首次开始计算
			resumed = true
			descs, startErr = c.resumeModels(s, now)
			if startErr != nil {
				return false
			}
			remaining = s.StartedAt.Add(timeout).Sub(now)
			e.stop = stop
			return true
		}
		descs = c.FilterModels(s)
		if len(descs) == 0 {
			if err := s.FailImmediately("no models available", now); err != nil {
				startErr = err
				return false
			}
			startErr = apperrors.ErrNoModelsAvailable
			return true
		}
		if err := s.Start(now); err != nil {
			startErr = err
			return false
		}
		remaining = timeout
		e.stop = stop
		return true
	})
	if startErr != nil {
		if started {
			metrics.GenerationSessionsTotal.WithLabelValues(string(entity.SessionStatusFailed)).Inc()
			logger.Warn(ctx, "generation session failed before dispatch", "reason", "no models available")
		} else {
			tracer.RecordError(span, startErr)
		}
		return startErr
	}

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	if resumed {
		logger.Warn(ctx, "generation session resumed", "models", len(descs), "dispatch_mode", mode, "remaining", remaining.String())
	} else {
		logger.Info(ctx, "generation session started", "models", len(descs), "dispatch_mode", mode)
	}

	timer := time.NewTimer(max(remaining, 0))
	defer timer.Stop()

	req := e.requestTemplate(gen.MaxNames)

	var timedOut bool
	switch {
	case remaining <= 0:
		timedOut = true
	case mode == config.DispatchConcurrent:
		timedOut = c.dispatchConcurrent(ctx, runCtx, e, descs, req, timer.C)
	default:
		timedOut = c.dispatchSequential(ctx, runCtx, e, descs, req, timer.C)
	}
	stop()

	var final *entity.GenerationSession
	e.update(ctx, func(s *entity.GenerationSession) bool {
		if s.IsTerminal() {
			final = s.Clone()
			return false
		}
		now := c.now()
		var err error
		if timedOut {
			err = s.Abandon(now)
		} else {
			err = s.Finalize(now)
		}
		if err != nil {
			logger.Error(ctx, "failed to finalize generation session", err)
			return false
		}
		final = s.Clone()
		return true
	})

	if final != nil {
		metrics.GenerationSessionsTotal.WithLabelValues(string(final.Status)).Inc()
		metrics.GenerationSessionDuration.WithLabelValues(mode).Observe(final.Duration(c.now()).Seconds())
		logger.Info(ctx, "generation session finished",
			"status", final.Status,
			"names", final.TotalNames(),
			"cost_cents", final.TotalCostCents(),
			"timed_out", timedOut,
		)
	}
	return nil
}

func (e *Execution) requestTemplate(maxNames int) service.GenerationRequest {
	if maxNames <= 0 {
		maxNames = prompt.DefaultMaxNames
	}
	return service.GenerationRequest{
		BasePrompt:   e.session.Prompt,
		Mode:         e.session.Mode,
		DeepThinking: e.session.DeepThinking,
		Parameters:   e.session.Parameters,
		MaxNames:     maxNames,
	}
}

// outcome 单模型调用结果
type outcome struct {
	desc     entity.ModelDescriptor
	result   *service.GenerationResult
	err      error
	duration time.Duration
}

// dispatchSequential 按请求顺序逐个调用；返回是否触发全局超时
func (c *Coordinator) dispatchSequential(ctx, runCtx context.Context, e *Execution, descs []entity.ModelDescriptor, req service.GenerationRequest, deadline <-chan time.Time) bool {
	for _, desc := range descs {
		select {
		case <-e.cancelCh:
			return false
		case <-deadline:
			return true
		default:
		}

		out := make(chan outcome, 1)
		go c.call(runCtx, e, desc, req, out)

		select {
		case o := <-out:
			c.apply(ctx, e, o)
		case <-e.cancelCh:
			return false
		case <-deadline:
			return true
		}
	}
	return false
}

// dispatchConcurrent 每个模型一个 goroutine，结果经通道汇入；返回是否触发全局超时
func (c *Coordinator) dispatchConcurrent(ctx, runCtx context.Context, e *Execution, descs []entity.ModelDescriptor, req service.GenerationRequest, deadline <-chan time.Time) bool {
	out := make(chan outcome, len(descs))
	var g errgroup.Group
	for _, desc := range descs {
		g.Go(func() error {
			c.call(runCtx, e, desc, req, out)
			return nil
		})
	}

	for received := 0; received < len(descs); {
		select {
		case o := <-out:
			received++
			c.apply(ctx, e, o)
		case <-e.cancelCh:
			return false
		case <-deadline:
			return true
		}
	}
	_ = g.Wait()
	return false
}

// call 调用单个模型适配器；适配器 panic 按上游错误处理
func (c *Coordinator) call(ctx context.Context, e *Execution, desc entity.ModelDescriptor, req service.GenerationRequest, out chan<- outcome) {
	start := c.now()
	o := outcome{desc: desc}
	defer func() {
		if r := recover(); r != nil {
			o.result = nil
			o.err = service.NewProviderError(desc.ID, fmt.Errorf("adapter panic: %v", r))
		}
		o.duration = c.now().Sub(start)
		out <- o
	}()

	e.update(ctx, func(s *entity.GenerationSession) bool {
		return s.BeginModel(desc.ID, start)
	})

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Current().Generation.AdapterTimeout
	}
	if timeout <= 0 {
		timeout = defaultAdapterTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx = logger.WithContext(callCtx, logger.ModelIDKey, desc.ID)
	callCtx = service.WithCallLabels(callCtx, service.CallLabels{
		SessionID: e.session.ID,
		Provider:  desc.Provider,
		ModelID:   desc.ID,
	})

	adapter, err := c.adapters.Resolve(callCtx, desc)
	if err != nil {
		o.err = service.ClassifyError(desc.ID, err)
		return
	}

	req.ModelID = desc.ID
	req.Prompt = prompt.OptimizeWithLimit(req.BasePrompt, req.Mode, req.DeepThinking, desc.ID, req.MaxNames)

	res, err := adapter.Generate(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = service.NewTimeoutError(desc.ID, err)
	}
	if err == nil && res == nil {
		err = service.NewProviderError(desc.ID, errors.New("adapter returned no result"))
	}
	o.result, o.err = res, err
}

// apply 把单模型结果写入会话；会话已离开 running 时结果被丢弃
func (c *Coordinator) apply(ctx context.Context, e *Execution, o outcome) {
	desc := o.desc
	ctx = logger.WithContext(ctx, logger.ModelIDKey, desc.ID)

	usage := service.UsageInput{
		SessionID: e.session.ID,
		UserID:    e.session.UserID,
		ModelID:   desc.ID,
		Provider:  desc.Provider,
		LatencyMs: o.duration.Milliseconds(),
	}
	if o.err == nil && o.result.Memoized {
		// 记忆化结果沿用原始调用的耗时，不计入实时调用直方图
		usage.LatencyMs = o.result.Latency.Milliseconds()
	} else {
		metrics.LLMCallDuration.WithLabelValues(desc.Provider, desc.ID).Observe(o.duration.Seconds())
	}

	var accepted bool
	if o.err == nil {
		var cost int64
		if !o.result.Memoized && c.costs != nil {
			var err error
			cost, err = c.costs.Cost(desc.ID, o.result.InputTokens, o.result.OutputTokens)
			if err != nil {
				logger.Warn(ctx, "failed to price model call", "error", err.Error())
			}
		}
		accepted = e.update(ctx, func(s *entity.GenerationSession) bool {
			return s.RecordSuccess(desc.ID, o.result.Names, o.result.Usage(), cost, o.duration, c.now())
		})
		usage.Success = true
		usage.InputTokens = o.result.InputTokens
		usage.OutputTokens = o.result.OutputTokens
		usage.CostCents = cost
		usage.NamesCount = len(o.result.Names)
		if accepted {
			logger.Info(ctx, "model produced names", "names", len(o.result.Names), "latency_ms", usage.LatencyMs, "memoized", o.result.Memoized)
		}
	} else {
		ge := service.ClassifyError(desc.ID, o.err)
		accepted = e.update(ctx, func(s *entity.GenerationSession) bool {
			return s.RecordFailure(desc.ID, ge.Kind, ge.PublicMessage(), o.duration, c.now())
		})
		usage.ErrorKind = ge.Kind
		if accepted {
			logger.Error(ctx, "model call failed", ge, "kind", ge.Kind, "latency_ms", usage.LatencyMs)
		}
	}

	if !accepted {
		logger.Debug(ctx, "dropping late model result")
		return
	}
	if c.recorder != nil {
		if err := c.recorder.Record(ctx, usage); err != nil {
			logger.Warn(ctx, "failed to record usage", "error", err.Error())
		}
	}
}
