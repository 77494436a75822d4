/**
 * @author: sun977
 * @date: 2026.03.27
 * @description: 设备侧接口(注册、上报、指令轮询与结果回传)
 * @func:
 * 	1.设备注册
 * 	2.状态上报
 * 	3.物料上报
 * 	4.待执行指令轮询
 * 	5.指令结果上报
 * 	6.订单上报
 */
package device

import (
	"net/http"

	"github.com/gin-gonic/gin"

	commandModel "vendmaster/internal/model/command"
	deviceModel "vendmaster/internal/model/device"
	orderModel "vendmaster/internal/model/order"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
	commandService "vendmaster/internal/service/command"
	deviceService "vendmaster/internal/service/device"
	orderService "vendmaster/internal/service/order"
)

// DeviceHandler 设备侧接口处理器
type DeviceHandler struct {
	deviceService    deviceService.DeviceService       // 设备服务
	reconcileService commandService.ReconcileService   // 指令结果回收服务
	orderService     orderService.OrderService         // 订单服务
}

// NewDeviceHandler 创建设备侧接口处理器
func NewDeviceHandler(devSvc deviceService.DeviceService, reconcileSvc commandService.ReconcileService, ordSvc orderService.OrderService) *DeviceHandler {
	return &DeviceHandler{
		deviceService:    devSvc,
		reconcileService: reconcileSvc,
		orderService:     ordSvc,
	}
}

// Register 设备注册【完成】
// POST /api/devices/register
func (h *DeviceHandler) Register(c *gin.Context) {
	var req deviceModel.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id is required"})
		return
	}

	resp, err := h.deviceService.Register(&req, utils.GetClientIP(c))
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), 0, utils.GetClientIP(c), "register_device", "POST", map[string]interface{}{
			"operation": "register_device",
			"func_name": "handler.device.Register",
			"device_no": req.DeviceID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReportStatus 设备状态上报【完成】
// POST /api/devices/:device_id/status
func (h *DeviceHandler) ReportStatus(c *gin.Context) {
	deviceNo := c.Param("device_id")

	var req deviceModel.StatusReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.deviceService.ReportStatus(deviceNo, &req); err != nil {
		if err == deviceService.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), 0, utils.GetClientIP(c), "report_status", "POST", map[string]interface{}{
			"operation": "report_status",
			"func_name": "handler.device.ReportStatus",
			"device_no": deviceNo,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ReportMaterials 设备物料上报【完成】
// POST /api/devices/:device_id/materials
func (h *DeviceHandler) ReportMaterials(c *gin.Context) {
	deviceNo := c.Param("device_id")

	var req deviceModel.MaterialsReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bins is required"})
		return
	}

	if err := h.deviceService.ReportMaterials(deviceNo, &req); err != nil {
		if err == deviceService.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), 0, utils.GetClientIP(c), "report_materials", "POST", map[string]interface{}{
			"operation": "report_materials",
			"func_name": "handler.device.ReportMaterials",
			"device_no": deviceNo,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PollPending 待执行指令轮询【完成】
// GET /api/devices/:device_id/commands/pending
// 返回裸数组，读取副作用把pending翻转为sent；重复轮询幂等
func (h *DeviceHandler) PollPending(c *gin.Context) {
	deviceNo := c.Param("device_id")

	commands, err := h.reconcileService.PollPending(deviceNo)
	if err != nil {
		if err == commandService.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), 0, utils.GetClientIP(c), "poll_pending", "GET", map[string]interface{}{
			"operation": "poll_pending",
			"func_name": "handler.device.PollPending",
			"device_no": deviceNo,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, commands)
}

// ReportCommandResult 指令结果上报【完成】
// POST /api/devices/:device_id/command_result
// 未知command_id同样返回{ok:true}，审计记录已留痕
func (h *DeviceHandler) ReportCommandResult(c *gin.Context) {
	deviceNo := c.Param("device_id")

	var req commandModel.ResultReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command_id is required"})
		return
	}

	if err := h.reconcileService.ReportResult(deviceNo, &req, utils.GetClientIP(c)); err != nil {
		if err == commandService.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), 0, utils.GetClientIP(c), "report_command_result", "POST", map[string]interface{}{
			"operation":  "report_command_result",
			"func_name":  "handler.device.ReportCommandResult",
			"device_no":  deviceNo,
			"command_id": req.CommandID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CreateOrder 设备订单上报【完成】
// POST /api/devices/:device_id/orders
func (h *DeviceHandler) CreateOrder(c *gin.Context) {
	deviceNo := c.Param("device_id")

	var req orderModel.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}

	resp, err := h.orderService.CreateFromDevice(deviceNo, &req, utils.GetClientIP(c))
	if err != nil {
		if err == orderService.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), 0, utils.GetClientIP(c), "create_order", "POST", map[string]interface{}{
			"operation": "create_order",
			"func_name": "handler.device.CreateOrder",
			"device_no": deviceNo,
			"order_no":  req.OrderID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
