package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/application/generation"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/repository"
	"namesmith-ai-api/internal/interfaces/http/dto"
	"namesmith-ai-api/internal/interfaces/http/middleware"
	apperrors "namesmith-ai-api/pkg/errors"
)

const (
	defaultPollInterval = time.Second
	streamGrace         = 30 * time.Second
)

// SessionService 会话用例
type SessionService interface {
	StartSession(ctx context.Context, in generation.StartInput) (string, error)
	GetStatus(ctx context.Context, userID, id string) (generation.StatusSnapshot, error)
	CancelSession(ctx context.Context, userID, id string) (bool, error)
	DeleteSession(ctx context.Context, userID, id string) error
	ListSessions(ctx context.Context, userID string, filter *repository.SessionFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationSession], error)
}

// SessionHandler 生成会话处理器
type SessionHandler struct {
	svc SessionService
	cfg *config.Manager
}

// NewSessionHandler 创建生成会话处理器
func NewSessionHandler(svc SessionService, cfg *config.Manager) *SessionHandler {
	return &SessionHandler{svc: svc, cfg: cfg}
}

// Start 创建生成会话
// @Summary 创建生成会话
// @Description 校验并准入后异步执行，立即返回会话 ID
// @Tags Sessions
// @Accept json
// @Produce json
// @Param body body dto.StartSessionRequest true "生成参数"
// @Success 201 {object} dto.Response[dto.StartSessionResponse]
// @Failure 402 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /v1/sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = middleware.ProjectID(c)
	}

	id, err := h.svc.StartSession(c.Request.Context(), generation.StartInput{
		UserID:       middleware.UserID(c),
		ProjectID:    projectID,
		Prompt:       req.Prompt,
		Models:       req.Models,
		Mode:         req.Mode,
		DeepThinking: req.DeepThinking,
		Parameters:   req.Parameters,
	})
	if err != nil {
		if id != "" && apperrors.Is(err, apperrors.ErrNoModelsAvailable) {
			// 会话已以 failed 落库，返回 ID 便于查询失败原因
			dto.ErrorWithData(c, err, dto.StartSessionResponse{SessionID: id, Status: string(entity.SessionStatusFailed)})
			return
		}
		fail(c, err)
		return
	}

	dto.Created(c, dto.StartSessionResponse{SessionID: id, Status: string(entity.SessionStatusPending)})
}

// Get 查询会话状态快照
// @Summary 查询会话状态
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[generation.StatusSnapshot]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.Response[generation.StatusSnapshot]
// @Router /v1/sessions/{sid} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	snap, err := h.svc.GetStatus(c.Request.Context(), middleware.UserID(c), dto.BindSessionID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if !snap.Found() {
		c.JSON(http.StatusNotFound, dto.Response[generation.StatusSnapshot]{
			Code:    http.StatusNotFound,
			Message: generation.StatusNotFound,
			Data:    snap,
			TraceID: c.GetString("trace_id"),
		})
		return
	}
	dto.Success(c, snap)
}

// Stream 以 SSE 推送会话快照，直到会话结束
// @Summary 订阅会话状态
// @Tags Sessions
// @Produce text/event-stream
// @Param sid path string true "会话 ID"
// @Success 200 "SSE stream"
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/stream [get]
func (h *SessionHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindSessionID(c)
	userID := middleware.UserID(c)

	first, err := h.svc.GetStatus(ctx, userID, id)
	if err != nil {
		fail(c, err)
		return
	}
	if !first.Found() {
		dto.Error(c, apperrors.ErrSessionNotFound)
		return
	}

	gen := h.cfg.Current().Generation
	interval := gen.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := time.NewTimer(gen.SessionTimeout + streamGrace)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	pending := &first
	lastStatus := ""
	c.Stream(func(w io.Writer) bool {
		if pending == nil {
			select {
			case <-ctx.Done():
				return false
			case <-deadline.C:
				c.SSEvent("timeout", gin.H{"session_id": id, "status": lastStatus})
				return false
			case <-ticker.C:
			}
			snap, err := h.svc.GetStatus(ctx, userID, id)
			if err != nil {
				c.SSEvent("error", gin.H{"message": apperrors.AsAppError(err).Message})
				return false
			}
			pending = &snap
		}

		snap := *pending
		pending = nil
		lastStatus = snap.Status
		c.SSEvent("status", snap)
		if snap.Terminal() {
			c.SSEvent("done", gin.H{"session_id": id, "status": snap.Status})
			return false
		}
		return true
	})
}

// Cancel 取消运行中的会话，已完成的模型结果保留
// @Summary 取消会话
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.CancelSessionResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	id := dto.BindSessionID(c)
	cancelled, err := h.svc.CancelSession(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	dto.Success(c, dto.CancelSessionResponse{SessionID: id, Cancelled: cancelled})
}

// Delete 删除会话及其用量记录
// @Summary 删除会话
// @Tags Sessions
// @Param sid path string true "会话 ID"
// @Success 204
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), middleware.UserID(c), dto.BindSessionID(c)); err != nil {
		fail(c, err)
		return
	}
	dto.NoContent(c)
}

// List 当前用户的会话列表
// @Summary 会话列表
// @Tags Sessions
// @Produce json
// @Param status query string false "按状态过滤"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.SessionSummary]
// @Router /v1/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	page := dto.BindPage(c)

	var filter *repository.SessionFilter
	status := entity.SessionStatus(c.Query("status"))
	if status != "" || c.Query("project_id") != "" {
		if status != "" && !status.Valid() {
			dto.Error(c, apperrors.ErrInvalidParam.WithDetail("unknown status: "+string(status)))
			return
		}
		filter = &repository.SessionFilter{Status: status, ProjectID: c.Query("project_id")}
	}

	result, err := h.svc.ListSessions(c.Request.Context(), middleware.UserID(c), filter, page)
	if err != nil {
		fail(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToSessionSummaries(result.Items), dto.NewPageMeta(result.Page, result.PageSize, result.Total))
}
