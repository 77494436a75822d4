/**
 * 服务层:指令下发服务
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 指令批量下发与批次管理核心业务逻辑
 * @func: 批量下发(部分成功语义)、批次摘要、批次明细、批次重试
 */
package command

import (
	"fmt"
	"time"

	"vendmaster/internal/config"
	"vendmaster/internal/model/basemodel"
	commandModel "vendmaster/internal/model/command"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
	commandRepo "vendmaster/internal/repo/mysql/command"
	deviceRepo "vendmaster/internal/repo/mysql/device"
	systemService "vendmaster/internal/service/system"
)

// DispatchService 指令下发服务接口定义
type DispatchService interface {
	// 指令下发
	Dispatch(op Operator, req *commandModel.DispatchRequest, clientIP, requestID string) (*commandModel.DispatchResponse, error)
	DispatchSingle(op Operator, deviceNo, commandType string, payload map[string]interface{}, priority, timeoutSeconds int) (*commandModel.Command, error)

	// 批次管理
	ListBatches(op Operator, page, pageSize int) ([]*commandModel.BatchSummary, int64, error)
	GetBatchDetail(op Operator, batchID string) ([]*commandModel.CommandDetail, error)
	RetryBatch(op Operator, batchID string, req *commandModel.RetryRequest, clientIP, requestID string) (int, error)
}

// dispatchService 指令下发服务实现
type dispatchService struct {
	cmdRepo    commandRepo.CommandRepository
	deviceRepo deviceRepo.DeviceRepository
	queue      *DispatchQueue
	oplog      systemService.OperationLogService
	cfg        config.DispatchConfig
}

// NewDispatchService 创建指令下发服务实例
// 遵循依赖注入原则，保持代码的可测试性
func NewDispatchService(cmdRepo commandRepo.CommandRepository, devRepo deviceRepo.DeviceRepository, queue *DispatchQueue, oplog systemService.OperationLogService, cfg config.DispatchConfig) DispatchService {
	return &dispatchService{
		cmdRepo:    cmdRepo,
		deviceRepo: devRepo,
		queue:      queue,
		oplog:      oplog,
		cfg:        cfg,
	}
}

// Dispatch 批量下发指令
// 部分成功语义：列表中无效的设备编号直接跳过，只要有一台有效设备就算下发成功
func (s *dispatchService) Dispatch(op Operator, req *commandModel.DispatchRequest, clientIP, requestID string) (*commandModel.DispatchResponse, error) {
	if len(req.DeviceIDs) == 0 {
		return nil, ErrEmptyDeviceList
	}
	if s.cfg.MaxBatchDevices > 0 && len(req.DeviceIDs) > s.cfg.MaxBatchDevices {
		return nil, ErrTooManyDevices
	}

	devices, err := s.deviceRepo.ListByDeviceNos(req.DeviceIDs, op.MerchantScope())
	if err != nil {
		return nil, fmt.Errorf("查询目标设备失败: %v", err)
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	timeoutSeconds := req.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = s.cfg.DefaultTimeout
	}

	batchID := utils.NewBatchID(time.Now())
	issued := 0
	for _, device := range devices {
		cmd := &commandModel.Command{
			CommandID:      utils.NewCommandID(),
			DeviceID:       device.ID,
			CommandType:    req.CommandType,
			Payload:        basemodel.JSONMap(req.Payload),
			IssuedBy:       op.UserID,
			Status:         commandModel.StatusPending,
			Channel:        commandModel.ChannelHTTPPoll,
			Priority:       req.Priority,
			TimeoutSeconds: timeoutSeconds,
			BatchID:        batchID,
		}

		if err := s.cmdRepo.Create(cmd); err != nil {
			// 单条失败不中断整批，继续处理剩余设备
			logger.LogError(err, requestID, uint(op.UserID), clientIP, "service.command.Dispatch", "", map[string]interface{}{
				"operation": "dispatch_command",
				"option":    "dispatchService.Dispatch",
				"func_name": "service.command.Dispatch",
				"batch_id":  batchID,
				"device_no": device.DeviceNo,
			})
			continue
		}

		issued++
		s.queue.Submit(cmd.CommandID)
	}

	if issued == 0 {
		return nil, fmt.Errorf("批次 %s 全部指令创建失败", batchID)
	}

	logger.LogBusinessOperation("command_dispatch", uint(op.UserID), op.Username, clientIP, requestID, "success",
		fmt.Sprintf("批量下发指令 %s，目标 %d 台，实际下发 %d 条", req.CommandType, len(req.DeviceIDs), issued),
		map[string]interface{}{
			"operation":    "dispatch_command",
			"option":       "dispatchService.Dispatch",
			"func_name":    "service.command.Dispatch",
			"batch_id":     batchID,
			"command_type": req.CommandType,
			"issued_count": issued,
		})

	s.oplog.Record(op.UserID, op.Username, "command_dispatch", "batch", batchID, clientIP, map[string]interface{}{
		"command_type": req.CommandType,
		"device_count": len(req.DeviceIDs),
		"issued_count": issued,
		"note":         req.Note,
	})

	return &commandModel.DispatchResponse{
		OK:          true,
		BatchID:     batchID,
		IssuedCount: issued,
	}, nil
}

// DispatchSingle 单设备直发指令 [WebSocket管理端admin_send_command使用]
// 不归属批次，优先走WebSocket实时推送
func (s *dispatchService) DispatchSingle(op Operator, deviceNo, commandType string, payload map[string]interface{}, priority, timeoutSeconds int) (*commandModel.Command, error) {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return nil, fmt.Errorf("查询目标设备失败: %v", err)
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	if scope := op.MerchantScope(); scope != nil && device.MerchantID != *scope {
		return nil, ErrDeviceNotFound
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = s.cfg.DefaultTimeout
	}

	cmd := &commandModel.Command{
		CommandID:      utils.NewCommandID(),
		DeviceID:       device.ID,
		CommandType:    commandType,
		Payload:        basemodel.JSONMap(payload),
		IssuedBy:       op.UserID,
		Status:         commandModel.StatusPending,
		Channel:        commandModel.ChannelWebSocket,
		Priority:       priority,
		TimeoutSeconds: timeoutSeconds,
	}

	if err := s.cmdRepo.Create(cmd); err != nil {
		return nil, fmt.Errorf("创建指令失败: %v", err)
	}

	s.queue.Submit(cmd.CommandID)

	return cmd, nil
}

// ListBatches 分页查询批次摘要
func (s *dispatchService) ListBatches(op Operator, page, pageSize int) ([]*commandModel.BatchSummary, int64, error) {
	summaries, total, err := s.cmdRepo.ListBatchSummaries(page, pageSize, op.MerchantScope())
	if err != nil {
		return nil, 0, fmt.Errorf("查询批次摘要失败: %v", err)
	}

	return summaries, total, nil
}

// GetBatchDetail 查询批次内全部指令明细
func (s *dispatchService) GetBatchDetail(op Operator, batchID string) ([]*commandModel.CommandDetail, error) {
	rows, err := s.cmdRepo.ListByBatch(batchID, op.MerchantScope())
	if err != nil {
		return nil, fmt.Errorf("查询批次明细失败: %v", err)
	}
	if len(rows) == 0 {
		return nil, ErrBatchNotFound
	}

	details := make([]*commandModel.CommandDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, &commandModel.CommandDetail{
			CommandID:     row.CommandID,
			DeviceNo:      row.DeviceNo,
			CommandType:   row.CommandType,
			Status:        row.Status,
			Channel:       row.Channel,
			Attempts:      row.Attempts,
			Payload:       row.Payload,
			ResultPayload: row.ResultPayload,
			CreatedAt:     row.CreatedAt,
			SentAt:        row.SentAt,
			ResultAt:      row.ResultAt,
		})
	}

	return details, nil
}

// RetryBatch 批次重试
// command_ids优先；retry_all重试fail和timeout；两者都缺省只重试fail
// 每条重置成功的指令重新入队，恰好产生一次投递任务
func (s *dispatchService) RetryBatch(op Operator, batchID string, req *commandModel.RetryRequest, clientIP, requestID string) (int, error) {
	statuses := []commandModel.CommandStatus{commandModel.StatusFail}
	if req.RetryAll {
		statuses = []commandModel.CommandStatus{commandModel.StatusFail, commandModel.StatusTimeout}
	}

	candidates, err := s.cmdRepo.ListRetryable(batchID, req.CommandIDs, statuses, op.MerchantScope())
	if err != nil {
		return 0, fmt.Errorf("查询可重试指令失败: %v", err)
	}
	if len(candidates) == 0 {
		return 0, ErrNoRetryableCommands
	}

	retried := 0
	for _, cmd := range candidates {
		applied, err := s.cmdRepo.ResetForRetry(cmd.CommandID)
		if err != nil || !applied {
			continue
		}
		retried++
		s.queue.Submit(cmd.CommandID)
	}

	if retried == 0 {
		return 0, ErrNoRetryableCommands
	}

	logger.LogBusinessOperation("command_retry", uint(op.UserID), op.Username, clientIP, requestID, "success",
		fmt.Sprintf("批次 %s 重试 %d 条指令", batchID, retried),
		map[string]interface{}{
			"operation":     "retry_batch",
			"option":        "dispatchService.RetryBatch",
			"func_name":     "service.command.RetryBatch",
			"batch_id":      batchID,
			"retried_count": retried,
		})

	s.oplog.Record(op.UserID, op.Username, "command_retry", "batch", batchID, clientIP, map[string]interface{}{
		"retry_all":     req.RetryAll,
		"command_ids":   req.CommandIDs,
		"retried_count": retried,
	})

	return retried, nil
}
