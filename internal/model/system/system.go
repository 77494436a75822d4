/**
 * 模型:系统模型
 * @author: sun977
 * @date: 2026.03.20
 * @description: 运营用户与操作日志数据模型
 * @func:
 * 	1.User 运营用户(只读，账号体系由运营平台维护)
 * 	2.OperationLog 操作审计日志
 */
package system

import (
	"time"

	"vendmaster/internal/model/basemodel"
)

// User 运营用户实体
// 本服务不提供注册登录，仅消费JWT并做展示关联
type User struct {
	basemodel.BaseModel
	Username   string `json:"username" gorm:"type:varchar(64);not null;uniqueIndex;comment:用户名"`
	Email      string `json:"email" gorm:"type:varchar(128);comment:邮箱"`
	Role       string `json:"role" gorm:"type:varchar(32);not null;default:operator;comment:角色"`
	MerchantID uint64 `json:"merchant_id" gorm:"not null;default:0;index;comment:所属商户ID"`
	IsActive   bool   `json:"is_active" gorm:"not null;default:true;comment:是否启用"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// OperationLog 操作审计日志
// 业务链路异步写入，失败只记日志不影响主流程
type OperationLog struct {
	ID         uint64            `json:"id" gorm:"primaryKey;autoIncrement;comment:主键ID"`
	UserID     uint64            `json:"user_id" gorm:"index;comment:操作用户ID"`
	Username   string            `json:"username" gorm:"type:varchar(64);comment:用户名"`
	Action     string            `json:"action" gorm:"type:varchar(64);not null;index;comment:操作动作"`
	TargetType string            `json:"target_type" gorm:"type:varchar(32);comment:操作对象类型"`
	TargetID   string            `json:"target_id" gorm:"type:varchar(64);comment:操作对象标识"`
	ClientIP   string            `json:"client_ip" gorm:"type:varchar(64);comment:客户端IP"`
	Detail     basemodel.JSONMap `json:"detail" gorm:"type:json;comment:操作详情"`
	CreatedAt  time.Time         `json:"created_at" gorm:"autoCreateTime;index;comment:操作时间"`
}

// TableName 指定表名
func (OperationLog) TableName() string {
	return "operation_logs"
}

// DashboardSummary 运营大盘汇总
type DashboardSummary struct {
	DeviceTotal    int64            `json:"device_total"`    // 设备总数
	DeviceOnline   int64            `json:"device_online"`   // 在线设备数
	OrderTodayNum  int64            `json:"order_today_num"` // 今日订单数
	OrderTodayAmt  float64          `json:"order_today_amt"` // 今日订单金额
	CommandLast24h map[string]int64 `json:"command_last_24h"` // 近24小时指令状态分布
}
