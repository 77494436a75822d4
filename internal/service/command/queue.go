/**
 * 服务层:指令投递队列
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 单worker投递队列，commands表即持久化发件箱
 * @func:
 * 	1.Submit 非阻塞唤醒worker
 * 	2.兜底扫描pending指令，进程重启或唤醒丢失后仍保证至少一次投递
 * 	3.WebSocket在线设备实时推送，离线设备留待HTTP轮询
 */
package command

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	commandModel "vendmaster/internal/model/command"
	"vendmaster/internal/pkg/logger"
	commandRepo "vendmaster/internal/repo/mysql/command"
	deviceRepo "vendmaster/internal/repo/mysql/device"
)

// DispatchQueue 指令投递队列
// 唤醒通道只是加速器，丢掉唤醒不丢指令：pending状态由兜底扫描重新发现
type DispatchQueue struct {
	cmdRepo    commandRepo.CommandRepository
	deviceRepo deviceRepo.DeviceRepository

	mu     sync.RWMutex
	pusher Pusher // WebSocket推送实现，启动时注入

	notify       chan string
	scanInterval time.Duration
	scanLimit    int

	wg sync.WaitGroup
}

// NewDispatchQueue 创建指令投递队列
func NewDispatchQueue(cmdRepo commandRepo.CommandRepository, devRepo deviceRepo.DeviceRepository, queueSize int, scanInterval time.Duration, scanLimit int) *DispatchQueue {
	if queueSize <= 0 {
		queueSize = 256
	}
	if scanInterval <= 0 {
		scanInterval = 5 * time.Second
	}
	if scanLimit <= 0 {
		scanLimit = 100
	}

	return &DispatchQueue{
		cmdRepo:      cmdRepo,
		deviceRepo:   devRepo,
		notify:       make(chan string, queueSize),
		scanInterval: scanInterval,
		scanLimit:    scanLimit,
	}
}

// SetPusher 注入实时推送实现 [Hub创建晚于队列，通过setter解决初始化顺序]
func (q *DispatchQueue) SetPusher(p Pusher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pusher = p
}

// getPusher 读取推送实现
func (q *DispatchQueue) getPusher() Pusher {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.pusher
}

// Submit 提交指令ID唤醒worker，非阻塞
// 通道满时丢弃唤醒并告警，指令仍是pending，由兜底扫描接手
func (q *DispatchQueue) Submit(commandID string) {
	select {
	case q.notify <- commandID:
	default:
		logger.LogWarn("指令唤醒通道已满，等待兜底扫描投递", "", 0, "", "service.command.queue.Submit", "", map[string]interface{}{
			"operation":  "submit_command",
			"option":     "DispatchQueue.Submit",
			"func_name":  "service.command.queue.Submit",
			"command_id": commandID,
		})
	}
}

// Start 启动投递worker [单goroutine，panic后自动重启]
func (q *DispatchQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			if !q.runOnce(ctx) {
				return
			}
		}
	}()

	logger.LogDispatchEvent("dispatch_queue", "startup", "指令投递队列已启动", logrus.InfoLevel, map[string]interface{}{
		"scan_interval": q.scanInterval.String(),
		"scan_limit":    q.scanLimit,
	})
}

// Wait 等待worker退出
func (q *DispatchQueue) Wait() {
	q.wg.Wait()
}

// runOnce 运行一轮worker循环，返回false表示上下文已取消
func (q *DispatchQueue) runOnce(ctx context.Context) (again bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogDispatchEvent("dispatch_queue", "panic", "投递worker异常退出，即将重启", logrus.ErrorLevel, map[string]interface{}{
				"panic": r,
			})
			again = true
		}
	}()

	ticker := time.NewTicker(q.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.LogDispatchEvent("dispatch_queue", "shutdown", "指令投递队列已停止", logrus.InfoLevel, nil)
			return false

		case commandID := <-q.notify:
			q.deliverByID(commandID)

		case <-ticker.C:
			q.scanOutbox()
		}
	}
}

// deliverByID 按指令ID尝试投递
func (q *DispatchQueue) deliverByID(commandID string) {
	cmd, err := q.cmdRepo.GetByCommandID(commandID)
	if err != nil || cmd == nil {
		return
	}
	q.deliver(cmd)
}

// scanOutbox 兜底扫描pending指令
// cutoff略早于当前时间，避免与刚入库还在唤醒通道里的指令重复抢投
func (q *DispatchQueue) scanOutbox() {
	cutoff := time.Now().Add(-2 * time.Second)
	commands, err := q.cmdRepo.ListPendingForScan(cutoff, q.scanLimit)
	if err != nil {
		return
	}

	for _, cmd := range commands {
		q.deliver(cmd)
	}
}

// deliver 单条指令投递
// WebSocket在线则实时推送并置sent；不在线保持pending，等设备HTTP轮询拉取
func (q *DispatchQueue) deliver(cmd *commandModel.Command) {
	if cmd.Status != commandModel.StatusPending {
		return
	}

	pusher := q.getPusher()
	if pusher == nil {
		return
	}

	device, err := q.deviceRepo.GetByID(cmd.DeviceID)
	if err != nil || device == nil {
		return
	}

	if !pusher.PushCommand(device.DeviceNo, cmd) {
		// 设备不在线或发送缓冲已满，留给轮询通道
		return
	}

	applied, err := q.cmdRepo.MarkSent(cmd.CommandID, commandModel.ChannelWebSocket)
	if err != nil {
		return
	}
	if applied {
		logger.LogDispatchEvent("dispatch_queue", "push", "指令已通过WebSocket推送", logrus.InfoLevel, map[string]interface{}{
			"command_id": cmd.CommandID,
			"device_no":  device.DeviceNo,
		})
	}
}
