/**
 * 服务层:运营大盘服务
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 运营大盘汇总统计
 * @func: 设备规模、实时在线数、今日营收、近24小时指令状态分布
 */
package system

import (
	"context"
	"fmt"
	"time"

	systemModel "vendmaster/internal/model/system"
	commandRepo "vendmaster/internal/repo/mysql/command"
	deviceRepo "vendmaster/internal/repo/mysql/device"
	orderRepo "vendmaster/internal/repo/mysql/order"
	redisRepo "vendmaster/internal/repo/redis"
)

// DashboardService 运营大盘服务接口定义
type DashboardService interface {
	Summary(ctx context.Context, merchantID *uint64) (*systemModel.DashboardSummary, error)
}

// dashboardService 运营大盘服务实现
type dashboardService struct {
	deviceRepo   deviceRepo.DeviceRepository
	orderRepo    orderRepo.OrderRepository
	cmdRepo      commandRepo.CommandRepository
	presenceRepo *redisRepo.PresenceRepository
}

// NewDashboardService 创建运营大盘服务实例
func NewDashboardService(devRepo deviceRepo.DeviceRepository, ordRepo orderRepo.OrderRepository, cmdRepo commandRepo.CommandRepository, presenceRepo *redisRepo.PresenceRepository) DashboardService {
	return &dashboardService{
		deviceRepo:   devRepo,
		orderRepo:    ordRepo,
		cmdRepo:      cmdRepo,
		presenceRepo: presenceRepo,
	}
}

// Summary 生成运营大盘汇总
// 全局视角的在线数以Redis实时状态为准；商户视角退化为数据库status统计
func (s *dashboardService) Summary(ctx context.Context, merchantID *uint64) (*systemModel.DashboardSummary, error) {
	total, online, err := s.deviceRepo.CountByStatus(merchantID)
	if err != nil {
		return nil, fmt.Errorf("统计设备数量失败: %v", err)
	}

	if merchantID == nil && s.presenceRepo != nil {
		if n, err := s.presenceRepo.CountOnline(ctx); err == nil {
			online = n
		}
	}

	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	orderNum, orderAmt, err := s.orderRepo.CountSince(todayStart, merchantID)
	if err != nil {
		return nil, fmt.Errorf("统计今日订单失败: %v", err)
	}

	commandCounts, err := s.cmdRepo.CountByStatusSince(now.Add(-24 * time.Hour))
	if err != nil {
		return nil, fmt.Errorf("统计指令状态分布失败: %v", err)
	}

	return &systemModel.DashboardSummary{
		DeviceTotal:    total,
		DeviceOnline:   online,
		OrderTodayNum:  orderNum,
		OrderTodayAmt:  orderAmt,
		CommandLast24h: commandCounts,
	}, nil
}
