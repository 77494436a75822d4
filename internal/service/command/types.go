/**
 * 指令服务层类型定义
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 指令服务层的公共类型与错误定义
 * @func: 操作者身份、推送与广播接口、哨兵错误
 */
package command

import (
	"errors"

	commandModel "vendmaster/internal/model/command"
)

// 服务层哨兵错误，handler层据此映射HTTP状态码
var (
	// ErrEmptyDeviceList 下发目标设备列表为空
	ErrEmptyDeviceList = errors.New("device list is empty")
	// ErrDeviceNotFound 目标设备不存在或不在当前商户数据范围内
	ErrDeviceNotFound = errors.New("device not found")
	// ErrBatchNotFound 批次不存在或不在当前商户数据范围内
	ErrBatchNotFound = errors.New("batch not found")
	// ErrNoRetryableCommands 批次内没有可重试的指令
	ErrNoRetryableCommands = errors.New("no retryable commands in batch")
	// ErrTooManyDevices 单批次设备数超限
	ErrTooManyDevices = errors.New("too many devices in one batch")
)

// Operator 操作者身份，由JWT中间件解析后传入服务层
type Operator struct {
	UserID     uint64 // 用户ID
	Username   string // 用户名
	Role       string // 角色
	MerchantID uint64 // 所属商户ID
}

// MerchantScope 返回商户数据范围，superadmin返回nil表示不限制
func (o Operator) MerchantScope() *uint64 {
	if o.Role == "superadmin" {
		return nil
	}
	merchantID := o.MerchantID
	return &merchantID
}

// Pusher 实时推送接口，由WebSocket Hub实现
// 返回true表示指令已成功写入设备连接的发送缓冲
type Pusher interface {
	PushCommand(deviceNo string, cmd *commandModel.Command) bool
}

// Broadcaster 管理端广播接口，由WebSocket Hub实现
type Broadcaster interface {
	BroadcastToAdmins(event string, data map[string]interface{})
}
