/**
 * @author: sun977
 * @date: 2026.03.27
 * @description: 系统管理接口(运营大盘与操作日志)
 * @func:
 * 	1.运营大盘汇总
 * 	2.操作日志列表
 * 	3.运营用户只读查询
 */
package system

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vendmaster/internal/model"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
	systemService "vendmaster/internal/service/system"
)

// SystemHandler 系统管理处理器
type SystemHandler struct {
	dashboardService systemService.DashboardService    // 运营大盘服务
	oplogService     systemService.OperationLogService // 操作日志服务
	userService      systemService.UserService         // 运营用户服务
}

// NewSystemHandler 创建系统管理处理器
func NewSystemHandler(dashboardSvc systemService.DashboardService, oplogSvc systemService.OperationLogService, userSvc systemService.UserService) *SystemHandler {
	return &SystemHandler{
		dashboardService: dashboardSvc,
		oplogService:     oplogSvc,
		userService:      userSvc,
	}
}

// GetDashboard 运营大盘汇总【完成】
// GET /api/manage/dashboard
func (h *SystemHandler) GetDashboard(c *gin.Context) {
	claims, ok := utils.GetClaimsFromGinContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.APIResponse{
			Code:    http.StatusUnauthorized,
			Status:  "error",
			Message: "unauthorized",
		})
		return
	}

	summary, err := h.dashboardService.Summary(c.Request.Context(), claims.MerchantScope())
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_dashboard", "GET", map[string]interface{}{
			"operation": "get_dashboard",
			"func_name": "handler.system.GetDashboard",
		})
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:    http.StatusInternalServerError,
			Status:  "error",
			Message: "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: "get dashboard successfully",
		Data:    summary,
	})
}

// GetOperationLogs 操作日志列表【完成】
// GET /api/manage/operation-logs?page=1&page_size=20&action=
func (h *SystemHandler) GetOperationLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	action := c.Query("action")

	logs, total, err := h.oplogService.GetList(page, pageSize, action)
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_operation_logs", "GET", map[string]interface{}{
			"operation": "get_operation_logs",
			"func_name": "handler.system.GetOperationLogs",
		})
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:    http.StatusInternalServerError,
			Status:  "error",
			Message: "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: "get operation logs successfully",
		Data:    model.NewPagination(total, page, pageSize, logs),
	})
}

// GetUsers 运营用户列表【完成】
// GET /api/manage/users?page=1&page_size=20
func (h *SystemHandler) GetUsers(c *gin.Context) {
	claims, ok := utils.GetClaimsFromGinContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.APIResponse{
			Code:    http.StatusUnauthorized,
			Status:  "error",
			Message: "unauthorized",
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	users, total, err := h.userService.GetList(page, pageSize, claims.MerchantScope())
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_users", "GET", map[string]interface{}{
			"operation": "get_users",
			"func_name": "handler.system.GetUsers",
		})
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:    http.StatusInternalServerError,
			Status:  "error",
			Message: "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: "get users successfully",
		Data:    model.NewPagination(total, page, pageSize, users),
	})
}

// GetUser 运营用户详情【完成】
// GET /api/manage/users/:id
func (h *SystemHandler) GetUser(c *gin.Context) {
	claims, ok := utils.GetClaimsFromGinContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.APIResponse{
			Code:    http.StatusUnauthorized,
			Status:  "error",
			Message: "unauthorized",
		})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.APIResponse{
			Code:    http.StatusBadRequest,
			Status:  "error",
			Message: "invalid user id",
		})
		return
	}

	user, err := h.userService.GetByID(claims.MerchantScope(), id)
	if err != nil {
		if err == systemService.ErrUserNotFound {
			c.JSON(http.StatusNotFound, model.APIResponse{
				Code:    http.StatusNotFound,
				Status:  "error",
				Message: "user not found",
			})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_user", "GET", map[string]interface{}{
			"operation": "get_user",
			"func_name": "handler.system.GetUser",
			"user_id":   id,
		})
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:    http.StatusInternalServerError,
			Status:  "error",
			Message: "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: "get user successfully",
		Data:    user,
	})
}
