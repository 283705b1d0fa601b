// Package http 财务服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/evservicecenter/internal/finance/application"
	"github.com/wyfcoding/evservicecenter/internal/finance/domain"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/response"
)

// InvoiceHandler HTTP 处理器
type InvoiceHandler struct {
	svc *application.FinanceService
}

// NewInvoiceHandler 创建 HTTP 处理器实例
func NewInvoiceHandler(svc *application.FinanceService) *InvoiceHandler {
	return &InvoiceHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/invoices")
	{
		api.POST("", h.Create)          // 创建账单
		api.GET("", h.List)             // 账单列表
		api.GET("/:id", h.Get)          // 账单详情
		api.POST("/:id/pay", h.Pay)     // 标记支付成功
		api.POST("/:id/void", h.Void)   // 作废账单
	}
}

// CreateRequest 创建账单请求
type CreateRequest struct {
	CustomerID  uint                        `json:"customer_id" binding:"required"`
	WorkOrderID uint                        `json:"work_order_id"`
	Items       []application.LineItemInput `json:"items" binding:"required"`
}

// Create 创建账单
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	invoice, err := h.svc.CreateInvoice(c.Request.Context(), application.CreateInvoiceCommand{
		CustomerID:  req.CustomerID,
		WorkOrderID: req.WorkOrderID,
		Items:       req.Items,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to create invoice", "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, invoice)
}

// Pay 标记账单支付成功
func (h *InvoiceHandler) Pay(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	invoice, err := h.svc.MarkPaid(c.Request.Context(), id)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to mark invoice paid", "invoice_id", id, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, invoice)
}

// Void 作废账单
func (h *InvoiceHandler) Void(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	invoice, err := h.svc.Void(c.Request.Context(), id)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to void invoice", "invoice_id", id, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, invoice)
}

// Get 查询账单详情
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	invoice, err := h.svc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, invoice)
}

// List 分页查询账单
func (h *InvoiceHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	customerID, _ := strconv.ParseUint(c.DefaultQuery("customer_id", "0"), 10, 64)

	result, err := h.svc.ListInvoices(c.Request.Context(), domain.Query{
		CustomerID: uint(customerID),
		Status:     domain.InvoiceStatus(c.Query("status")),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list invoices", "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, result)
}

func (h *InvoiceHandler) invoiceID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid invoice id")
		return 0, false
	}
	return uint(id), true
}

// statusFor 将领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvoiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvoiceNotPayable),
		errors.Is(err, domain.ErrNoLineItems),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
