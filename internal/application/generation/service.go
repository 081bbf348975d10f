package generation

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"namesmith-ai-api/internal/application/pricing"
	"namesmith-ai-api/internal/application/quota"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/repository"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/internal/infrastructure/messaging"
	apperrors "namesmith-ai-api/pkg/errors"
	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/tracer"
)

const defaultMaxPromptLength = 2000

// Admitter 准入控制
type Admitter interface {
	Admit(ctx context.Context, userID string, estimatedCents int64) (*quota.Admission, error)
}

// TokenChecker 用户 Token 日配额
type TokenChecker interface {
	CheckDailyTokens(ctx context.Context, userID string) (used int64, max int64, err error)
}

// Quoter 会话费用预估
type Quoter interface {
	Quote(models []string, prompt string) (*pricing.Quote, error)
}

// Dispatcher 把会话派发给 gen-worker
type Dispatcher interface {
	PublishDispatch(ctx context.Context, d *messaging.DispatchMessage) (string, error)
}

// CancelBroadcaster 跨进程取消广播
type CancelBroadcaster interface {
	Publish(ctx context.Context, sessionID string) (int64, error)
}

// ServiceDeps 生成服务依赖；Gate/Tokens/Quoter/Dispatcher/Canceller 可为 nil
type ServiceDeps struct {
	Coordinator *Coordinator
	Catalog     service.ModelCatalog
	Sessions    repository.SessionRepository
	Usage       repository.UsageRepository
	Tx          repository.Transactor
	Gate        Admitter
	Tokens      TokenChecker
	Quoter      Quoter
	Dispatcher  Dispatcher
	Canceller   CancelBroadcaster
	Config      *config.Manager
}

// StartInput 新建会话参数
type StartInput struct {
	UserID       string
	ProjectID    string
	Prompt       string
	Models       []string
	Mode         string
	DeepThinking bool
	Parameters   map[string]any
}

// Service 生成会话的入站操作
type Service struct {
	deps ServiceDeps

	mu      sync.RWMutex
	running map[string]*Execution
	wg      sync.WaitGroup
}

// NewService 创建生成服务
func NewService(deps ServiceDeps) *Service {
	return &Service{deps: deps, running: make(map[string]*Execution)}
}

// StartSession 校验、准入并创建会话，返回会话 ID。
// 所有模型均不可用时，会话不经准入直接以 failed 落库并返回 NoModelsAvailable
func (s *Service) StartSession(ctx context.Context, in StartInput) (string, error) {
	ctx, span := tracer.Start(ctx, "generation.Service.StartSession")
	defer span.End()

	cfg := s.deps.Config.Current()

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return "", apperrors.ErrUnauthorized
	}
	promptText := strings.TrimSpace(in.Prompt)
	if promptText == "" {
		return "", apperrors.ErrInvalidParam.WithDetail("prompt is required")
	}
	maxLen := cfg.Generation.MaxPromptLength
	if maxLen <= 0 {
		maxLen = defaultMaxPromptLength
	}
	if utf8.RuneCountInString(promptText) > maxLen {
		return "", apperrors.ErrInvalidParam.WithDetail("prompt is too long")
	}

	models := entity.DedupeModels(in.Models)
	if len(models) == 0 && cfg.Generation.DefaultModel != "" {
		models = []string{cfg.Generation.DefaultModel}
	}
	if len(models) == 0 {
		return "", apperrors.ErrInvalidParam.WithDetail("at least one model is required")
	}
	for _, m := range models {
		if _, ok := s.deps.Catalog.Lookup(m); !ok {
			return "", apperrors.ErrModelNotFound.WithDetail(m)
		}
	}

	if s.deps.Tokens != nil {
		if _, _, err := s.deps.Tokens.CheckDailyTokens(ctx, userID); err != nil {
			return "", err
		}
	}

	session := entity.NewGenerationSession(userID, in.ProjectID, promptText, models, entity.ParseGenerationMode(in.Mode), in.DeepThinking, in.Parameters)
	ctx = logger.WithContext(ctx, logger.SessionIDKey, session.ID)

	// 无可用模型的会话不占用准入额度
	available := s.deps.Coordinator.FilterModels(session)
	if len(available) == 0 {
		if err := session.FailImmediately("no models available", session.CreatedAt); err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeInternalError, "failed to fail session")
		}
		if err := s.deps.Sessions.Create(ctx, session); err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create session")
		}
		logger.Warn(ctx, "generation session refused, no models available", "models", models)
		return session.ID, apperrors.ErrNoModelsAvailable
	}

	var estimate int64
	if s.deps.Quoter != nil {
		ids := make([]string, len(available))
		for i, d := range available {
			ids[i] = d.ID
		}
		if q, err := s.deps.Quoter.Quote(ids, promptText); err == nil {
			estimate = q.TotalCents
		}
	}
	if s.deps.Gate != nil {
		if _, err := s.deps.Gate.Admit(ctx, userID, estimate); err != nil {
			tracer.RecordError(span, err)
			return "", err
		}
	}

	if err := s.deps.Sessions.Create(ctx, session); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create session")
	}
	logger.Info(ctx, "generation session created", "models", models, "mode", session.Mode, "estimate_cents", estimate)

	if cfg.Generation.AsyncDispatch && s.deps.Dispatcher != nil {
		_, err := s.deps.Dispatcher.PublishDispatch(ctx, &messaging.DispatchMessage{
			SessionID: session.ID,
			UserID:    userID,
			ProjectID: in.ProjectID,
			RequestID: requestIDFromContext(ctx),
			TraceID:   tracer.TraceID(ctx),
		})
		if err == nil {
			return session.ID, nil
		}
		logger.Error(ctx, "failed to dispatch session, running in-process", err)
	}

	s.launch(context.WithoutCancel(ctx), session)
	return session.ID, nil
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// launch 在后台执行会话
func (s *Service) launch(ctx context.Context, session *entity.GenerationSession) {
	exec := s.register(session)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(session.ID)
		if err := s.deps.Coordinator.Execute(ctx, exec); err != nil {
			logger.Warn(ctx, "generation session ended without dispatch", "error", err.Error())
		}
	}()
}

func (s *Service) register(session *entity.GenerationSession) *Execution {
	exec := s.deps.Coordinator.Prepare(session, s.persist)
	s.mu.Lock()
	s.running[session.ID] = exec
	s.mu.Unlock()
	return exec
}

func (s *Service) unregister(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Service) execution(id string) (*Execution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.running[id]
	return e, ok
}

// persist 快照落库，失败只记日志
func (s *Service) persist(ctx context.Context, snap *entity.GenerationSession) {
	if err := s.deps.Sessions.Update(ctx, snap); err != nil {
		logger.Error(ctx, "failed to persist session snapshot", err, "status", snap.Status)
	}
}

// RunDispatched gen-worker 入口：加载 pending 会话并同步执行；
// 本进程未在执行的 running 会话视为中断，接管后收尾
func (s *Service) RunDispatched(ctx context.Context, id string) error {
	session, err := s.deps.Sessions.GetByID(ctx, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if session == nil {
		logger.Warn(ctx, "dispatched session no longer exists", "session_id", id)
		return nil
	}
	switch session.Status {
	case entity.SessionStatusPending:
	case entity.SessionStatusRunning:
		if _, ok := s.execution(id); ok {
			logger.Info(ctx, "dispatched session already running here", "session_id", id)
			return nil
		}
		// 上一个 worker 中途退出，消息被重新投递
		logger.Warn(ctx, "taking over interrupted session", "session_id", id, "started_at", session.StartedAt)
	default:
		// 重复投递
		logger.Info(ctx, "dispatched session already handled", "session_id", id, "status", session.Status)
		return nil
	}

	exec := s.register(session)
	defer s.unregister(id)
	if err := s.deps.Coordinator.Execute(ctx, exec); err != nil && !apperrors.Is(err, apperrors.ErrNoModelsAvailable) {
		return err
	}
	return nil
}

// GetStatus 优先读取进程内执行状态，其次读取仓储；未知会话返回 not_found 快照。
// userID 非空时只允许会话所有者读取
func (s *Service) GetStatus(ctx context.Context, userID, id string) (StatusSnapshot, error) {
	if exec, ok := s.execution(id); ok {
		if userID != "" && exec.UserID() != userID {
			return StatusSnapshot{}, apperrors.ErrForbidden
		}
		return NewStatusSnapshot(exec.Snapshot()), nil
	}
	session, err := s.deps.Sessions.GetByID(ctx, id)
	if err != nil {
		return StatusSnapshot{}, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if session == nil {
		return NotFoundSnapshot(id), nil
	}
	if userID != "" && session.UserID != userID {
		return StatusSnapshot{}, apperrors.ErrForbidden
	}
	return NewStatusSnapshot(session), nil
}

// CancelSession 取消运行中的会话；会话不存在、未运行或已结束时返回 false
func (s *Service) CancelSession(ctx context.Context, userID, id string) (bool, error) {
	if exec, ok := s.execution(id); ok {
		if userID != "" && exec.UserID() != userID {
			return false, apperrors.ErrForbidden
		}
		return exec.Cancel(ctx), nil
	}

	session, err := s.deps.Sessions.GetByID(ctx, id)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if session == nil {
		return false, nil
	}
	if userID != "" && session.UserID != userID {
		return false, apperrors.ErrForbidden
	}
	if session.Status != entity.SessionStatusRunning || s.deps.Canceller == nil {
		return false, nil
	}
	if _, err := s.deps.Canceller.Publish(ctx, id); err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to broadcast cancel")
	}
	return true, nil
}

// CancelLocal 取消本进程内的执行（处理取消广播）
func (s *Service) CancelLocal(ctx context.Context, id string) bool {
	exec, ok := s.execution(id)
	if !ok {
		return false
	}
	return exec.Cancel(ctx)
}

// DeleteSession 删除会话及其用量记录，仅限会话所有者
func (s *Service) DeleteSession(ctx context.Context, userID, id string) error {
	session, err := s.deps.Sessions.GetByID(ctx, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if session == nil {
		return apperrors.ErrSessionNotFound
	}
	if session.UserID != userID {
		return apperrors.ErrForbidden
	}

	if exec, ok := s.execution(id); ok {
		exec.Cancel(ctx)
		select {
		case <-exec.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if session.Status == entity.SessionStatusRunning && s.deps.Canceller != nil {
		if _, err := s.deps.Canceller.Publish(ctx, id); err != nil {
			logger.Warn(ctx, "failed to broadcast cancel before delete", "session_id", id, "error", err.Error())
		}
	}

	err = s.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.deps.Usage.DeleteBySession(ctx, id); err != nil {
			return err
		}
		return s.deps.Sessions.Delete(ctx, id)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete session")
	}
	logger.Info(ctx, "generation session deleted", "session_id", id)
	return nil
}

// ListSessions 分页列出用户的会话
func (s *Service) ListSessions(ctx context.Context, userID string, filter *repository.SessionFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationSession], error) {
	res, err := s.deps.Sessions.ListByUser(ctx, userID, filter, pagination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list sessions")
	}
	return res, nil
}

// Drain 等待进程内会话结束；ctx 结束时取消剩余会话
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	s.mu.RLock()
	execs := make([]*Execution, 0, len(s.running))
	for _, e := range s.running {
		execs = append(execs, e)
	}
	s.mu.RUnlock()
	for _, e := range execs {
		e.Cancel(context.WithoutCancel(ctx))
	}
	<-done
	return ctx.Err()
}
