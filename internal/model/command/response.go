/**
 * 模型:指令响应模型
 * @author: sun977
 * @date: 2026.03.16
 * @description: 指令下发与批次查询的响应结构体
 * @func: 各种Response结构体定义
 */
package command

import (
	"time"

	"vendmaster/internal/model/basemodel"
)

// DispatchResponse 批量下发指令响应
type DispatchResponse struct {
	OK          bool   `json:"ok"`           // 是否成功
	BatchID     string `json:"batch_id"`     // 批次ID
	IssuedCount int    `json:"issued_count"` // 实际下发条数
}

// BatchSummary 批次聚合摘要
type BatchSummary struct {
	BatchID     string     `json:"batch_id"`               // 批次ID
	CommandType string     `json:"command_type"`           // 指令类型
	Total       int64      `json:"total"`                  // 指令总数
	Pending     int64      `json:"pending"`                // 待投递数
	Sent        int64      `json:"sent"`                   // 已投递数
	Success     int64      `json:"success"`                // 成功数
	Fail        int64      `json:"fail"`                   // 失败数
	Timeout     int64      `json:"timeout"`                // 超时数
	CreatedAt   time.Time  `json:"created_at"`             // 批次创建时间
	FinishedAt  *time.Time `json:"finished_at,omitempty"`  // 最后一条结果时间
}

// CommandDetail 批次内单条指令明细
type CommandDetail struct {
	CommandID     string            `json:"command_id"`     // 指令ID
	DeviceNo      string            `json:"device_no"`      // 设备编号
	CommandType   string            `json:"command_type"`   // 指令类型
	Status        CommandStatus     `json:"status"`         // 指令状态
	Channel       CommandChannel    `json:"channel"`        // 下发通道
	Attempts      int               `json:"attempts"`       // 重试次数
	Payload       basemodel.JSONMap `json:"payload"`        // 指令参数
	ResultPayload basemodel.JSONMap `json:"result_payload"` // 执行结果
	CreatedAt     time.Time         `json:"created_at"`     // 创建时间
	SentAt        *time.Time        `json:"sent_at"`        // 投递时间
	ResultAt      *time.Time        `json:"result_at"`      // 结果时间
}

// PendingCommand 设备轮询返回的待执行指令
type PendingCommand struct {
	CommandID string                 `json:"command_id"` // 指令ID
	Type      string                 `json:"type"`       // 指令类型
	Payload   map[string]interface{} `json:"payload"`    // 指令参数
	IssuedAt  string                 `json:"issued_at"`  // 下发时间
}

// RetryResponse 批次重试响应
type RetryResponse struct {
	OK           bool `json:"ok"`            // 是否成功
	RetriedCount int  `json:"retried_count"` // 重置的指令数
}
