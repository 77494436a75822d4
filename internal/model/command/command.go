/**
 * 模型:远程指令
 * @author: sun977
 * @date: 2026.03.16
 * @description: 远程指令数据模型，统一HTTP轮询和WebSocket两种下发通道
 * @func:
 * 	1.Command 指令实体(commands表即持久化发件箱)
 * 	2.CommandResultRecord 指令结果审计记录
 * 	3.指令状态机定义与校验
 */
package command

import (
	"time"

	"vendmaster/internal/model/basemodel"
)

// CommandStatus 指令状态枚举
type CommandStatus string

const (
	// StatusPending 已入库待投递
	StatusPending CommandStatus = "pending"
	// StatusSent 已投递给设备，等待执行结果
	StatusSent CommandStatus = "sent"
	// StatusSuccess 设备上报执行成功
	StatusSuccess CommandStatus = "success"
	// StatusFail 设备上报执行失败
	StatusFail CommandStatus = "fail"
	// StatusTimeout 超过timeout_seconds仍未收到结果，由清扫任务置为超时
	StatusTimeout CommandStatus = "timeout"
)

// validTransitions 指令状态机
// pending → sent → {success, fail}
// {pending, sent} → timeout (清扫任务)
// {fail, timeout} → pending (运营重试)
var validTransitions = map[CommandStatus][]CommandStatus{
	StatusPending: {StatusSent, StatusSuccess, StatusFail, StatusTimeout},
	StatusSent:    {StatusSuccess, StatusFail, StatusTimeout},
	StatusFail:    {StatusPending},
	StatusTimeout: {StatusPending},
	StatusSuccess: {},
}

// IsValid 判断是否为合法状态值
func (s CommandStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusSuccess, StatusFail, StatusTimeout:
		return true
	}
	return false
}

// IsTerminal 判断是否为终态(success不可再变更，fail/timeout仅可被重试)
func (s CommandStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail || s == StatusTimeout
}

// CanTransition 校验状态迁移是否合法
func (s CommandStatus) CanTransition(to CommandStatus) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CommandChannel 指令下发通道枚举
type CommandChannel string

const (
	// ChannelHTTPPoll 设备HTTP轮询拉取
	ChannelHTTPPoll CommandChannel = "http_poll"
	// ChannelWebSocket WebSocket实时推送
	ChannelWebSocket CommandChannel = "websocket"
)

// Command 远程指令实体
// commands表同时承担持久化发件箱职责：worker按status=pending扫描投递，
// 进程重启后未投递的指令仍会被兜底扫描发现
type Command struct {
	basemodel.BaseModel
	CommandID      string            `json:"command_id" gorm:"type:varchar(64);not null;uniqueIndex;comment:全局唯一指令ID"`
	DeviceID       uint64            `json:"device_id" gorm:"not null;index;comment:目标设备ID"`
	CommandType    string            `json:"command_type" gorm:"type:varchar(64);not null;comment:指令类型"`
	Payload        basemodel.JSONMap `json:"payload" gorm:"type:json;comment:指令参数"`
	IssuedBy       uint64            `json:"issued_by" gorm:"comment:下发用户ID"`
	Status         CommandStatus     `json:"status" gorm:"type:varchar(16);not null;default:pending;index;comment:指令状态"`
	Channel        CommandChannel    `json:"channel" gorm:"type:varchar(16);not null;default:http_poll;comment:下发通道"`
	Priority       int               `json:"priority" gorm:"not null;default:0;comment:优先级，越大越先投递"`
	TimeoutSeconds int               `json:"timeout_seconds" gorm:"not null;default:300;comment:超时时间(秒)"`
	Attempts       int               `json:"attempts" gorm:"not null;default:0;comment:重试次数"`
	BatchID        string            `json:"batch_id" gorm:"type:varchar(64);index;comment:批次ID，单发指令为空"`
	ResultPayload  basemodel.JSONMap `json:"result_payload" gorm:"type:json;comment:设备上报结果"`
	SentAt         *time.Time        `json:"sent_at" gorm:"comment:投递时间"`
	ResultAt       *time.Time        `json:"result_at" gorm:"comment:结果上报时间"`
}

// TableName 指定表名
func (Command) TableName() string {
	return "commands"
}

// IsDeliverable 是否处于可投递给设备的状态
func (c *Command) IsDeliverable() bool {
	return c.Status == StatusPending || c.Status == StatusSent
}

// CommandResultRecord 指令结果审计记录
// 只追加不修改，即使command_id在指令表中不存在也会留痕
type CommandResultRecord struct {
	ID        uint64            `json:"id" gorm:"primaryKey;autoIncrement;comment:主键ID"`
	CommandID string            `json:"command_id" gorm:"type:varchar(64);not null;index;comment:指令ID"`
	DeviceID  uint64            `json:"device_id" gorm:"not null;index;comment:上报设备ID"`
	Success   bool              `json:"success" gorm:"not null;comment:是否成功"`
	Message   string            `json:"message" gorm:"type:varchar(512);comment:结果描述"`
	RawReport basemodel.JSONMap `json:"raw_report" gorm:"type:json;comment:原始上报内容"`
	CreatedAt time.Time         `json:"created_at" gorm:"autoCreateTime;comment:记录时间"`
}

// TableName 指定表名
func (CommandResultRecord) TableName() string {
	return "command_results"
}
