/**
 * 模型:设备响应模型
 * @author: sun977
 * @date: 2026.03.18
 * @description: 设备管理接口的响应结构体
 * @func: 各种Response结构体定义
 */
package device

import "time"

// RegisterResponse 设备注册响应
type RegisterResponse struct {
	OK       bool   `json:"ok"`       // 是否成功
	DeviceNo string `json:"device_no"` // 设备编号
	APIKey   string `json:"api_key"`  // 设备API密钥，仅首次注册返回
	IsNew    bool   `json:"is_new"`   // 是否新注册设备
}

// DeviceInfo 设备列表项
type DeviceInfo struct {
	ID              uint64     `json:"id"`               // 设备ID
	DeviceNo        string     `json:"device_no"`        // 设备编号
	MerchantID      uint64     `json:"merchant_id"`      // 所属商户ID
	Model           string     `json:"model"`            // 设备型号
	FirmwareVersion string     `json:"firmware_version"` // 固件版本
	Status          string     `json:"status"`           // 设备状态
	Online          bool       `json:"online"`           // 实时在线(presence)
	LastSeen        *time.Time `json:"last_seen"`        // 最后心跳时间
	Address         string     `json:"address"`          // 投放地址
	CreatedAt       time.Time  `json:"created_at"`       // 注册时间
}

// BinInfo 料仓信息
type BinInfo struct {
	BinIndex     int        `json:"bin_index"`     // 仓位序号
	MaterialCode string     `json:"material_code"` // 物料编码
	MaterialName string     `json:"material_name"` // 物料名称
	Remaining    float64    `json:"remaining"`     // 剩余量
	Capacity     float64    `json:"capacity"`      // 容量
	Unit         string     `json:"unit"`          // 计量单位
	Threshold    float64    `json:"threshold"`     // 低库存阈值
	Low          bool       `json:"low"`           // 是否低库存
	LastSyncAt   *time.Time `json:"last_sync_at"`  // 最后同步时间
}
