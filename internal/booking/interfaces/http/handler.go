// Package http 预约服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/evservicecenter/internal/booking/application"
	"github.com/wyfcoding/evservicecenter/internal/booking/domain"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/response"
)

// BookingHandler HTTP 处理器
type BookingHandler struct {
	svc *application.BookingService
}

// NewBookingHandler 创建 HTTP 处理器实例
func NewBookingHandler(svc *application.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *BookingHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/appointments")
	{
		api.POST("", h.Book)                   // 创建预约
		api.GET("", h.List)                    // 预约列表
		api.GET("/availability", h.Availability) // 技师可用时段
		api.GET("/:id", h.Get)                 // 预约详情
		api.PUT("/:id/status", h.UpdateStatus) // 推进状态
	}
}

// BookRequest 创建预约请求
type BookRequest struct {
	CustomerID   uint      `json:"customer_id" binding:"required"`
	VehicleID    uint      `json:"vehicle_id" binding:"required"`
	TechnicianID uint      `json:"technician_id" binding:"required"`
	SlotStart    time.Time `json:"slot_start" binding:"required"`
	SlotEnd      time.Time `json:"slot_end" binding:"required"`
	ServiceType  string    `json:"service_type"`
	Notes        string    `json:"notes"`
}

// Book 创建预约
func (h *BookingHandler) Book(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	appointment, err := h.svc.Book(c.Request.Context(), application.BookCommand{
		CustomerID:   req.CustomerID,
		VehicleID:    req.VehicleID,
		TechnicianID: req.TechnicianID,
		SlotStart:    req.SlotStart,
		SlotEnd:      req.SlotEnd,
		ServiceType:  req.ServiceType,
		Notes:        req.Notes,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to book appointment", "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, appointment)
}

// UpdateStatusRequest 状态流转请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 推进预约状态
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.appointmentID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	appointment, err := h.svc.UpdateStatus(c.Request.Context(), id, domain.AppointmentStatus(req.Status))
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to update appointment status", "appointment_id", id, "error", err)
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, appointment)
}

// Get 查询预约详情
func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := h.appointmentID(c)
	if !ok {
		return
	}

	appointment, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.ErrorWithStatus(c, statusFor(err), err.Error())
		return
	}

	response.Success(c, appointment)
}

// List 分页查询预约
func (h *BookingHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	customerID, _ := strconv.ParseUint(c.DefaultQuery("customer_id", "0"), 10, 64)
	technicianID, _ := strconv.ParseUint(c.DefaultQuery("technician_id", "0"), 10, 64)

	result, err := h.svc.List(c.Request.Context(), domain.Query{
		CustomerID:   uint(customerID),
		TechnicianID: uint(technicianID),
		Status:       domain.AppointmentStatus(c.Query("status")),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list appointments", "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, result)
}

// Availability 查询技师某天的可用时段
func (h *BookingHandler) Availability(c *gin.Context) {
	technicianID, err := strconv.ParseUint(c.Query("technician_id"), 10, 64)
	if err != nil || technicianID == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid technician_id")
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	slots, err := h.svc.Availability(c.Request.Context(), uint(technicianID), date)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to query availability", "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, slots)
}

func (h *BookingHandler) appointmentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return uint(id), true
}

// statusFor 将领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAppointmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSlotTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSlot), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
