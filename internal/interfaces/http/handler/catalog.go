package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/application/pricing"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/internal/interfaces/http/dto"
	apperrors "namesmith-ai-api/pkg/errors"
)

// Quoter 费用报价
type Quoter interface {
	Quote(models []string, prompt string) (*pricing.Quote, error)
}

// CatalogHandler 模型目录与报价处理器
type CatalogHandler struct {
	catalog service.ModelCatalog
	quoter  Quoter
}

// NewCatalogHandler 创建模型目录处理器
func NewCatalogHandler(catalog service.ModelCatalog, quoter Quoter) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, quoter: quoter}
}

// ListModels 列出已注册模型及当前可用性
// @Summary 模型列表
// @Tags Models
// @Produce json
// @Success 200 {object} dto.Response[[]dto.ModelResponse]
// @Router /v1/models [get]
func (h *CatalogHandler) ListModels(c *gin.Context) {
	descs := h.catalog.List()
	out := make([]dto.ModelResponse, 0, len(descs))
	for _, d := range descs {
		out = append(out, dto.ToModelResponse(d, unavailableReason(h.catalog, d)))
	}
	dto.Success(c, out)
}

func unavailableReason(catalog service.ModelCatalog, d entity.ModelDescriptor) string {
	_, err := catalog.Available(d.ID)
	if err == nil {
		return ""
	}
	var ge *service.GenerationError
	if errors.As(err, &ge) && ge.Err != nil {
		return ge.Err.Error()
	}
	return "model unavailable"
}

// Quote 按提示词与模型预估费用
// @Summary 费用报价
// @Tags Models
// @Accept json
// @Produce json
// @Param body body dto.QuoteRequest true "报价参数"
// @Success 200 {object} dto.Response[pricing.Quote]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/quotes [post]
func (h *CatalogHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if !bindJSON(c, &req) {
		return
	}
	models := entity.DedupeModels(req.Models)
	for _, m := range models {
		if _, ok := h.catalog.Lookup(m); !ok {
			dto.Error(c, apperrors.ErrModelNotFound.WithDetail(m))
			return
		}
	}

	quote, err := h.quoter.Quote(models, req.Prompt)
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.CodeInvalidParam, "failed to quote"))
		return
	}
	dto.Success(c, quote)
}
