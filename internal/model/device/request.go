/**
 * 模型:设备侧请求模型
 * @author: sun977
 * @date: 2026.03.18
 * @description: 设备注册与上报的请求结构体
 * @func: 各种Request结构体定义
 */
package device

// RegisterRequest 设备注册请求
// 同一device_id重复注册视为信息更新，api_key只在首次注册时生成
type RegisterRequest struct {
	DeviceID        string   `json:"device_id" binding:"required"` // 设备编号
	Model           string   `json:"model"`                        // 设备型号
	Serial          string   `json:"serial"`                       // 序列号
	MAC             string   `json:"mac"`                          // MAC地址
	FirmwareVersion string   `json:"firmware_version"`             // 固件版本
	LocationLat     *float64 `json:"location_lat"`                 // 纬度
	LocationLng     *float64 `json:"location_lng"`                 // 经度
	Address         string   `json:"address"`                      // 投放地址
}

// StatusReportRequest 设备状态上报请求
type StatusReportRequest struct {
	Status          string                 `json:"status"`           // 设备状态
	Temperature     *float64               `json:"temperature"`      // 机内温度
	WifiSSID        string                 `json:"wifi_ssid"`        // 联网SSID
	FirmwareVersion string                 `json:"firmware_version"` // 固件版本
	UptimeSeconds   int64                  `json:"uptime_seconds"`   // 开机时长(秒)
	Extra           map[string]interface{} `json:"extra"`            // 其他上报字段
}

// BinReport 单个料仓上报
type BinReport struct {
	BinIndex     int     `json:"bin_index" binding:"required"` // 仓位序号
	MaterialCode string  `json:"material_code"`                // 物料编码
	MaterialName string  `json:"material_name"`                // 物料名称
	Remaining    float64 `json:"remaining"`                    // 剩余量
	Capacity     float64 `json:"capacity"`                     // 容量
	Unit         string  `json:"unit"`                         // 计量单位
	Threshold    float64 `json:"threshold"`                    // 低库存阈值
}

// MaterialsReportRequest 设备物料上报请求
type MaterialsReportRequest struct {
	Bins []BinReport `json:"bins" binding:"required"` // 料仓列表
}
