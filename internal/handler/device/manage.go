/**
 * @author: sun977
 * @date: 2026.03.27
 * @description: 设备管理接口(管理端)
 * @func:
 * 	1.设备列表
 * 	2.设备详情
 * 	3.设备料仓
 */
package device

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vendmaster/internal/model"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
	deviceService "vendmaster/internal/service/device"
)

// ManageHandler 设备管理处理器
type ManageHandler struct {
	deviceService deviceService.DeviceService // 设备服务
}

// NewManageHandler 创建设备管理处理器
func NewManageHandler(devSvc deviceService.DeviceService) *ManageHandler {
	return &ManageHandler{
		deviceService: devSvc,
	}
}

// merchantScopeFromContext 从JWT声明换算商户数据范围，superadmin返回nil不限制
func merchantScopeFromContext(c *gin.Context) (*uint64, bool) {
	claims, ok := utils.GetClaimsFromGinContext(c)
	if !ok {
		return nil, false
	}
	return claims.MerchantScope(), true
}

// GetDevices 设备列表【完成】
// GET /api/manage/devices?page=1&page_size=20&status=&keyword=
func (h *ManageHandler) GetDevices(c *gin.Context) {
	scope, ok := merchantScopeFromContext(c)
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
	status := c.Query("status")
	keyword := c.Query("keyword")

	devices, total, err := h.deviceService.GetList(c.Request.Context(), scope, page, pageSize, status, keyword)
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_devices", "GET", map[string]interface{}{
			"operation": "get_devices",
			"func_name": "handler.device.GetDevices",
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
		Message: "get devices successfully",
		Data:    model.NewPagination(total, page, pageSize, devices),
	})
}

// GetDevice 设备详情【完成】
// GET /api/manage/devices/:device_id
func (h *ManageHandler) GetDevice(c *gin.Context) {
	scope, ok := merchantScopeFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.APIResponse{
			Code:    http.StatusUnauthorized,
			Status:  "error",
			Message: "unauthorized",
		})
		return
	}

	deviceNo := c.Param("device_id")
	info, err := h.deviceService.GetDetail(c.Request.Context(), scope, deviceNo)
	if err != nil {
		if err == deviceService.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, model.APIResponse{
				Code:    http.StatusNotFound,
				Status:  "error",
				Message: "device not found",
			})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_device", "GET", map[string]interface{}{
			"operation": "get_device",
			"func_name": "handler.device.GetDevice",
			"device_no": deviceNo,
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
		Message: "get device successfully",
		Data:    info,
	})
}

// GetDeviceBins 设备料仓【完成】
// GET /api/manage/devices/:device_id/bins
func (h *ManageHandler) GetDeviceBins(c *gin.Context) {
	scope, ok := merchantScopeFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.APIResponse{
			Code:    http.StatusUnauthorized,
			Status:  "error",
			Message: "unauthorized",
		})
		return
	}

	deviceNo := c.Param("device_id")
	bins, err := h.deviceService.ListBins(scope, deviceNo)
	if err != nil {
		if err == deviceService.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, model.APIResponse{
				Code:    http.StatusNotFound,
				Status:  "error",
				Message: "device not found",
			})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_device_bins", "GET", map[string]interface{}{
			"operation": "get_device_bins",
			"func_name": "handler.device.GetDeviceBins",
			"device_no": deviceNo,
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
		Message: "get device bins successfully",
		Data:    bins,
	})
}
