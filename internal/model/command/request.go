/**
 * 模型:指令请求模型
 * @author: sun977
 * @date: 2026.03.16
 * @description: 指令下发与结果上报的请求结构体
 * @func: 各种Request结构体定义
 */
package command

import "time"

// DispatchRequest 批量下发指令请求
type DispatchRequest struct {
	DeviceIDs      []string               `json:"device_ids" binding:"required"`   // 目标设备编号列表
	CommandType    string                 `json:"command_type" binding:"required"` // 指令类型
	Payload        map[string]interface{} `json:"payload"`                         // 指令参数
	Note           string                 `json:"note"`                            // 运营备注
	Priority       int                    `json:"priority"`                        // 优先级
	TimeoutSeconds int                    `json:"timeout_seconds"`                 // 超时时间(秒)，0使用默认值
}

// RetryRequest 批次重试请求
// command_ids优先；retry_all重试fail和timeout；两者都缺省只重试fail
type RetryRequest struct {
	RetryAll   bool     `json:"retry_all"`   // 是否重试所有失败和超时指令
	CommandIDs []string `json:"command_ids"` // 指定重试的指令ID列表
}

// ResultReportRequest 设备指令结果上报请求
type ResultReportRequest struct {
	CommandID     string                 `json:"command_id" binding:"required"` // 指令ID
	Status        string                 `json:"status"`                        // 执行结果: success / fail
	Success       *bool                  `json:"success"`                       // 兼容布尔形式上报
	Message       string                 `json:"message"`                       // 结果描述
	ResultPayload map[string]interface{} `json:"result_payload"`                // 结构化执行结果
	Result        map[string]interface{} `json:"result"`                        // 旧字段名，兼容保留
	ResultAt      string                 `json:"result_at"`                     // 设备侧结果时间(RFC3339)，缺省取服务端时间
}

// Succeeded 归一化上报结果，status字段优先，其次success布尔
func (r *ResultReportRequest) Succeeded() bool {
	switch r.Status {
	case "success", "ok":
		return true
	case "fail", "failed", "error":
		return false
	}
	if r.Success != nil {
		return *r.Success
	}
	return true
}

// Payload 归一化结构化结果，result_payload优先，旧的result字段兜底
func (r *ResultReportRequest) Payload() map[string]interface{} {
	if len(r.ResultPayload) > 0 {
		return r.ResultPayload
	}
	return r.Result
}

// ReportedAt 解析设备侧结果时间，解析失败或缺省返回now
func (r *ResultReportRequest) ReportedAt(now time.Time) time.Time {
	if r.ResultAt == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339, r.ResultAt); err == nil {
		return t
	}
	return now
}
