// Package http 通知服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/evservicecenter/internal/notification/application"
	"github.com/wyfcoding/evservicecenter/internal/notification/domain"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/response"
)

// NotificationHandler HTTP 处理器
type NotificationHandler struct {
	svc *application.NotificationService
}

// NewNotificationHandler 创建 HTTP 处理器实例
func NewNotificationHandler(svc *application.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/notifications")
	{
		api.GET("", h.List)    // 通知列表
		api.GET("/:id", h.Get) // 通知详情
	}
}

// List 分页查询通知
func (h *NotificationHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	userID, _ := strconv.ParseUint(c.DefaultQuery("user_id", "0"), 10, 64)

	result, err := h.svc.ListNotifications(c.Request.Context(), uint(userID), page, limit)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list notifications", "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, result)
}

// Get 查询通知详情
func (h *NotificationHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid notification id")
		return
	}

	n, err := h.svc.GetNotification(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, err.Error())
			return
		}
		logger.Error(c.Request.Context(), "Failed to get notification", "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, n)
}
