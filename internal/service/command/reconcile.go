/**
 * 服务层:指令结果回收服务
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 设备侧指令轮询与结果上报处理
 * @func:
 * 	1.PollPending 设备拉取待执行指令，读取副作用把pending翻转为sent
 * 	2.ReportResult 结果上报落账，任何上报都先落审计表
 */
package command

import (
	"fmt"
	"sync"
	"time"

	"vendmaster/internal/model/basemodel"
	commandModel "vendmaster/internal/model/command"
	"vendmaster/internal/pkg/logger"
	commandRepo "vendmaster/internal/repo/mysql/command"
	deviceRepo "vendmaster/internal/repo/mysql/device"
)

// ReconcileService 指令结果回收服务接口定义
type ReconcileService interface {
	PollPending(deviceNo string) ([]*commandModel.PendingCommand, error)
	ReportResult(deviceNo string, req *commandModel.ResultReportRequest, clientIP string) error
	SetBroadcaster(b Broadcaster)
}

// reconcileService 指令结果回收服务实现
type reconcileService struct {
	cmdRepo    commandRepo.CommandRepository
	deviceRepo deviceRepo.DeviceRepository

	mu          sync.RWMutex
	broadcaster Broadcaster // 管理端实时广播，启动时注入
}

// NewReconcileService 创建指令结果回收服务实例
func NewReconcileService(cmdRepo commandRepo.CommandRepository, devRepo deviceRepo.DeviceRepository) ReconcileService {
	return &reconcileService{
		cmdRepo:    cmdRepo,
		deviceRepo: devRepo,
	}
}

// SetBroadcaster 注入管理端广播实现 [Hub创建晚于服务，通过setter解决初始化顺序]
func (s *reconcileService) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// getBroadcaster 读取广播实现
func (s *reconcileService) getBroadcaster() Broadcaster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadcaster
}

// PollPending 设备轮询待执行指令
// 返回的pending指令同步翻转为sent；sent指令照常返回，设备重启后能重拉未完成的工作
// 重复轮询幂等：翻转有守卫条件，指令集合不会因多次轮询膨胀
func (s *reconcileService) PollPending(deviceNo string) ([]*commandModel.PendingCommand, error) {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return nil, fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}

	// 轮询视作一次心跳
	_ = s.deviceRepo.TouchLastSeen(device.ID)

	commands, err := s.cmdRepo.ListDeliverable(device.ID)
	if err != nil {
		return nil, fmt.Errorf("查询待执行指令失败: %v", err)
	}

	pending := make([]*commandModel.PendingCommand, 0, len(commands))
	var flipIDs []string
	for _, cmd := range commands {
		pending = append(pending, &commandModel.PendingCommand{
			CommandID: cmd.CommandID,
			Type:      cmd.CommandType,
			Payload:   cmd.Payload,
			IssuedAt:  cmd.CreatedAt.Format(time.RFC3339),
		})
		if cmd.Status == commandModel.StatusPending {
			flipIDs = append(flipIDs, cmd.CommandID)
		}
	}

	if len(flipIDs) > 0 {
		if err := s.cmdRepo.MarkSentBatch(flipIDs); err != nil {
			return nil, fmt.Errorf("更新指令投递状态失败: %v", err)
		}
	}

	return pending, nil
}

// ReportResult 处理设备的指令结果上报
// 先落审计表再尝试落账，未知command_id或重复上报都返回成功，
// 丢弃上报比容忍一条脏记录代价更高
func (s *reconcileService) ReportResult(deviceNo string, req *commandModel.ResultReportRequest, clientIP string) error {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return ErrDeviceNotFound
	}

	succeeded := req.Succeeded()
	payload := req.Payload()
	resultAt := req.ReportedAt(time.Now())

	// 审计记录无条件写入，包括未知指令ID的上报
	record := &commandModel.CommandResultRecord{
		CommandID: req.CommandID,
		DeviceID:  device.ID,
		Success:   succeeded,
		Message:   req.Message,
		RawReport: basemodel.JSONMap(payload),
	}
	if err := s.cmdRepo.CreateResultRecord(record); err != nil {
		return fmt.Errorf("写入结果审计记录失败: %v", err)
	}

	status := commandModel.StatusSuccess
	if !succeeded {
		status = commandModel.StatusFail
	}

	applied, err := s.cmdRepo.RecordResult(req.CommandID, device.ID, status, payload, resultAt)
	if err != nil {
		return fmt.Errorf("更新指令结果失败: %v", err)
	}
	if !applied {
		// 未知指令ID或终态指令的重复上报，审计已留痕，业务上视为成功
		logger.LogWarn("收到无法落账的指令结果上报", "", 0, clientIP, "service.command.ReportResult", "", map[string]interface{}{
			"operation":  "report_result",
			"option":     "reconcileService.ReportResult",
			"func_name":  "service.command.ReportResult",
			"command_id": req.CommandID,
			"device_no":  deviceNo,
		})
	}

	_ = s.deviceRepo.TouchLastSeen(device.ID)

	if applied {
		if b := s.getBroadcaster(); b != nil {
			b.BroadcastToAdmins("command_result", map[string]interface{}{
				"command_id": req.CommandID,
				"device_no":  deviceNo,
				"status":     string(status),
				"message":    req.Message,
			})
		}
	}

	return nil
}
