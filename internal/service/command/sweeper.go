/**
 * 服务层:指令超时清扫器
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 周期性将超过timeout_seconds仍无结果的指令置为timeout
 * @func: cron驱动，清扫结果记入系统日志
 */
package command

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"vendmaster/internal/pkg/logger"
	commandRepo "vendmaster/internal/repo/mysql/command"
)

// TimeoutSweeper 指令超时清扫器
type TimeoutSweeper struct {
	cmdRepo  commandRepo.CommandRepository
	interval time.Duration
	cron     *cron.Cron
}

// NewTimeoutSweeper 创建指令超时清扫器
func NewTimeoutSweeper(cmdRepo commandRepo.CommandRepository, interval time.Duration) *TimeoutSweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &TimeoutSweeper{
		cmdRepo:  cmdRepo,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start 启动周期清扫任务
func (s *TimeoutSweeper) Start() error {
	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()

	logger.LogDispatchEvent("timeout_sweeper", "startup", "指令超时清扫器已启动", logrus.InfoLevel, map[string]interface{}{
		"interval": s.interval.String(),
	})

	return nil
}

// Stop 停止清扫任务，等待进行中的清扫结束
func (s *TimeoutSweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	logger.LogDispatchEvent("timeout_sweeper", "shutdown", "指令超时清扫器已停止", logrus.InfoLevel, nil)
}

// Sweep 立即执行一次清扫 [测试和运维手工触发使用]
func (s *TimeoutSweeper) Sweep() (int64, error) {
	return s.cmdRepo.ExpireTimedOut(time.Now())
}

// sweep 单轮清扫
func (s *TimeoutSweeper) sweep() {
	n, err := s.cmdRepo.ExpireTimedOut(time.Now())
	if err != nil {
		logger.LogDispatchEvent("timeout_sweeper", "sweep_failed", "指令超时清扫失败", logrus.ErrorLevel, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if n > 0 {
		logger.LogDispatchEvent("timeout_sweeper", "sweep", "已将超时指令置为timeout", logrus.InfoLevel, map[string]interface{}{
			"expired_count": n,
		})
	}
}
