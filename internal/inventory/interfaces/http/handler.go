// Package http 库存服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/evservicecenter/internal/inventory/application"
	"github.com/wyfcoding/evservicecenter/internal/inventory/domain"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/response"
)

// PartHandler HTTP 处理器
// 负责配件 CRUD、人工出入库与流水/统计查询
type PartHandler struct {
	cmd   *application.StockCommandService
	query *application.PartQueryService
}

// NewPartHandler 创建 HTTP 处理器实例
func NewPartHandler(cmd *application.StockCommandService, query *application.PartQueryService) *PartHandler {
	return &PartHandler{cmd: cmd, query: query}
}

// RegisterRoutes 注册路由
func (h *PartHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/parts")
	{
		api.POST("", h.CreatePart)            // 创建配件
		api.GET("", h.ListParts)              // 配件列表
		api.GET("/stats", h.UsageStats)       // 年度用料统计
		api.GET("/:id", h.GetPart)            // 配件详情
		api.PUT("/:id", h.UpdatePart)         // 更新配件
		api.DELETE("/:id", h.DeletePart)      // 删除配件
		api.POST("/:id/adjust", h.AdjustStock) // 人工出入库
		api.GET("/:id/history", h.History)    // 流水
	}
}

// CreatePartRequest 创建配件请求
type CreatePartRequest struct {
	Name       string `json:"name" binding:"required"`
	PartNumber string `json:"part_number" binding:"required"`
	Quantity   int64  `json:"quantity"`
	MinStock   int64  `json:"min_stock"`
	UnitPrice  int64  `json:"unit_price"`
}

// CreatePart 创建配件
func (h *PartHandler) CreatePart(c *gin.Context) {
	var req CreatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	part := &domain.Part{
		Name:       req.Name,
		PartNumber: req.PartNumber,
		Quantity:   req.Quantity,
		MinStock:   req.MinStock,
		UnitPrice:  req.UnitPrice,
	}

	if err := h.cmd.CreatePart(c.Request.Context(), part); err != nil {
		logger.Error(c.Request.Context(), "Failed to create part", "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, part)
}

// ListParts 配件列表
func (h *PartHandler) ListParts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	search := c.Query("search")
	lowStockOnly := c.Query("low_stock") == "true"

	result, err := h.query.ListParts(c.Request.Context(), page, limit, search, lowStockOnly)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list parts", "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, result)
}

// GetPart 配件详情
func (h *PartHandler) GetPart(c *gin.Context) {
	partID, ok := h.partID(c)
	if !ok {
		return
	}

	part, err := h.query.GetPart(c.Request.Context(), partID)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to get part", "part_id", partID, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, part)
}

// UpdatePartRequest 更新配件请求
type UpdatePartRequest struct {
	Name       string `json:"name" binding:"required"`
	PartNumber string `json:"part_number" binding:"required"`
	MinStock   int64  `json:"min_stock"`
	UnitPrice  int64  `json:"unit_price"`
}

// UpdatePart 更新配件基础属性
func (h *PartHandler) UpdatePart(c *gin.Context) {
	partID, ok := h.partID(c)
	if !ok {
		return
	}

	var req UpdatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	part, err := h.cmd.UpdatePart(c.Request.Context(), partID, req.Name, req.PartNumber, req.MinStock, req.UnitPrice)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to update part", "part_id", partID, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, part)
}

// DeletePart 删除配件
func (h *PartHandler) DeletePart(c *gin.Context) {
	partID, ok := h.partID(c)
	if !ok {
		return
	}

	if err := h.cmd.DeletePart(c.Request.Context(), partID); err != nil {
		logger.Error(c.Request.Context(), "Failed to delete part", "part_id", partID, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, gin.H{"status": "deleted", "part_id": partID})
}

// AdjustStockRequest 人工出入库请求
type AdjustStockRequest struct {
	ChangeType string `json:"change_type" binding:"required"` // IN 或 OUT
	Quantity   int64  `json:"quantity" binding:"required"`
	Reason     string `json:"reason"`
}

// AdjustStock 人工出入库
func (h *PartHandler) AdjustStock(c *gin.Context) {
	partID, ok := h.partID(c)
	if !ok {
		return
	}

	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	part, err := h.cmd.AdjustStock(c.Request.Context(), partID, domain.ChangeType(req.ChangeType), req.Quantity, req.Reason)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to adjust stock", "part_id", partID, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, part)
}

// History 配件流水
func (h *PartHandler) History(c *gin.Context) {
	partID, ok := h.partID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.query.GetHistory(c.Request.Context(), partID, page, limit)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to get part history", "part_id", partID, "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, result)
}

// UsageStats 年度用料统计
func (h *PartHandler) UsageStats(c *gin.Context) {
	year, err := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(time.Now().Year())))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid year")
		return
	}

	stats, err := h.query.GetUsageStats(c.Request.Context(), year)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to get usage stats", "year", year, "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, stats)
}

func (h *PartHandler) partID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid part id")
		return 0, false
	}
	return uint(id), true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPartNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrDuplicatePartNumber),
		errors.Is(err, domain.ErrPartInUse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
