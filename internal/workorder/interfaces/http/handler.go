// Package http 工单服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/evservicecenter/internal/workorder/application"
	"github.com/wyfcoding/evservicecenter/internal/workorder/domain"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/response"
)

// WorkOrderHandler HTTP 处理器
type WorkOrderHandler struct {
	svc *application.WorkOrderService
}

// NewWorkOrderHandler 创建 HTTP 处理器实例
func NewWorkOrderHandler(svc *application.WorkOrderService) *WorkOrderHandler {
	return &WorkOrderHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *WorkOrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/workorders")
	{
		api.POST("", h.Create)              // 创建工单
		api.GET("", h.List)                 // 工单列表
		api.GET("/:id", h.Get)              // 工单详情
		api.PUT("/:id/status", h.UpdateStatus) // 推进状态
		api.PUT("/:id/items", h.UpdateItems)   // 替换用料行
	}
}

// CreateRequest 创建工单请求
type CreateRequest struct {
	VehicleID    uint                    `json:"vehicle_id" binding:"required"`
	CustomerID   uint                    `json:"customer_id" binding:"required"`
	TechnicianID uint                    `json:"technician_id"`
	Description  string                  `json:"description"`
	Items        []application.ItemInput `json:"items"`
}

// Create 创建工单
func (h *WorkOrderHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.svc.Create(c.Request.Context(), application.CreateCommand{
		VehicleID:    req.VehicleID,
		CustomerID:   req.CustomerID,
		TechnicianID: req.TechnicianID,
		Description:  req.Description,
		Items:        req.Items,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to create work order", "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, order)
}

// UpdateStatusRequest 状态流转请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 推进工单状态
func (h *WorkOrderHandler) UpdateStatus(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.svc.UpdateStatus(c.Request.Context(), orderID, domain.Status(req.Status))
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to update work order status", "work_order_id", orderID, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, order)
}

// UpdateItemsRequest 替换用料行请求
type UpdateItemsRequest struct {
	Items []application.ItemInput `json:"items" binding:"required"`
}

// UpdateItems 替换工单用料行
func (h *WorkOrderHandler) UpdateItems(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req UpdateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.svc.UpdateItems(c.Request.Context(), orderID, req.Items)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to update work order items", "work_order_id", orderID, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, order)
}

// Get 工单详情
func (h *WorkOrderHandler) Get(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.svc.Get(c.Request.Context(), orderID)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to get work order", "work_order_id", orderID, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, order)
}

// List 工单列表
func (h *WorkOrderHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	status := domain.Status(c.Query("status"))
	customerID, _ := strconv.ParseUint(c.Query("customer_id"), 10, 64)

	result, err := h.svc.List(c.Request.Context(), page, limit, status, uint(customerID))
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list work orders", "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, result)
}

func (h *WorkOrderHandler) orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid work order id")
		return 0, false
	}
	return uint(id), true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrWorkOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNoItems):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
