/**
 * @author: sun977
 * @date: 2026.03.27
 * @description: 指令下发与批次管理接口(管理端)
 * @func:
 * 	1.批量下发指令
 * 	2.批次摘要列表
 * 	3.批次指令明细
 * 	4.批次重试
 */
package command

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	commandModel "vendmaster/internal/model/command"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
	commandService "vendmaster/internal/service/command"
)

// CommandHandler 指令管理处理器
type CommandHandler struct {
	dispatchService commandService.DispatchService // 指令下发服务
}

// NewCommandHandler 创建指令管理处理器
func NewCommandHandler(dispatchService commandService.DispatchService) *CommandHandler {
	return &CommandHandler{
		dispatchService: dispatchService,
	}
}

// operatorFromContext 从gin上下文取出JWT中间件写入的操作者身份
func operatorFromContext(c *gin.Context) (commandService.Operator, bool) {
	claims, ok := utils.GetClaimsFromGinContext(c)
	if !ok {
		return commandService.Operator{}, false
	}

	return commandService.Operator{
		UserID:     uint64(claims.UserID),
		Username:   claims.Username,
		Role:       claims.Role,
		MerchantID: uint64(claims.MerchantID),
	}, true
}

// Dispatch 批量下发指令【完成】
// POST /api/commands/dispatch
func (h *CommandHandler) Dispatch(c *gin.Context) {
	op, ok := operatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req commandModel.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_ids and command_type are required"})
		return
	}

	resp, err := h.dispatchService.Dispatch(op, &req, utils.GetClientIP(c), utils.GetRequestID(c))
	if err != nil {
		switch err {
		case commandService.ErrEmptyDeviceList, commandService.ErrTooManyDevices:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case commandService.ErrDeviceNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "no valid devices in device_ids"})
		default:
			logger.LogError(err, utils.GetRequestID(c), uint(op.UserID), utils.GetClientIP(c), "dispatch_commands", "POST", map[string]interface{}{
				"operation": "dispatch_commands",
				"func_name": "handler.command.Dispatch",
			})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListBatches 批次摘要列表【完成】
// GET /api/commands/batches?page=1&page_size=20
func (h *CommandHandler) ListBatches(c *gin.Context) {
	op, ok := operatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	batches, total, err := h.dispatchService.ListBatches(op, page, pageSize)
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), uint(op.UserID), utils.GetClientIP(c), "list_batches", "GET", map[string]interface{}{
			"operation": "list_batches",
			"func_name": "handler.command.ListBatches",
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches":   batches,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetBatchDetail 批次指令明细【完成】
// GET /api/commands/batches/:batch_id
func (h *CommandHandler) GetBatchDetail(c *gin.Context) {
	op, ok := operatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	batchID := c.Param("batch_id")
	details, err := h.dispatchService.GetBatchDetail(op, batchID)
	if err != nil {
		if err == commandService.ErrBatchNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		logger.LogError(err, utils.GetRequestID(c), uint(op.UserID), utils.GetClientIP(c), "get_batch_detail", "GET", map[string]interface{}{
			"operation": "get_batch_detail",
			"func_name": "handler.command.GetBatchDetail",
			"batch_id":  batchID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": batchID,
		"commands": details,
	})
}

// RetryBatch 批次重试【完成】
// POST /api/commands/batches/:batch_id/retry
func (h *CommandHandler) RetryBatch(c *gin.Context) {
	op, ok := operatorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	batchID := c.Param("batch_id")

	// 空body等价于默认只重试fail
	var req commandModel.RetryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	retried, err := h.dispatchService.RetryBatch(op, batchID, &req, utils.GetClientIP(c), utils.GetRequestID(c))
	if err != nil {
		switch err {
		case commandService.ErrNoRetryableCommands:
			c.JSON(http.StatusBadRequest, gin.H{"error": "no retryable commands in batch"})
		case commandService.ErrBatchNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		default:
			logger.LogError(err, utils.GetRequestID(c), uint(op.UserID), utils.GetClientIP(c), "retry_batch", "POST", map[string]interface{}{
				"operation": "retry_batch",
				"func_name": "handler.command.RetryBatch",
				"batch_id":  batchID,
			})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, commandModel.RetryResponse{
		OK:           true,
		RetriedCount: retried,
	})
}
