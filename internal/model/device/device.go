/**
 * 模型:售货设备
 * @author: sun977
 * @date: 2026.03.18
 * @description: 咖啡售货机设备数据模型
 * @func:
 * 	1.Device 设备实体
 * 	2.DeviceStatusLog 设备状态上报流水
 * 	3.DeviceBin 设备料仓
 * 	4.Material 物料字典
 */
package device

import (
	"time"

	"vendmaster/internal/model/basemodel"
)

// DeviceStatus 设备状态常量
const (
	StatusOnline      = "online"      // 在线
	StatusOffline     = "offline"     // 离线
	StatusFault       = "fault"       // 故障
	StatusMaintenance = "maintenance" // 维护中
)

// Device 售货设备实体
type Device struct {
	basemodel.BaseModel
	DeviceNo        string     `json:"device_no" gorm:"type:varchar(64);not null;uniqueIndex;comment:设备编号"`
	MerchantID      uint64     `json:"merchant_id" gorm:"not null;default:0;index;comment:所属商户ID"`
	APIKey          string     `json:"-" gorm:"type:varchar(64);not null;comment:设备API密钥"`
	Model           string     `json:"model" gorm:"type:varchar(64);comment:设备型号"`
	Serial          string     `json:"serial" gorm:"type:varchar(64);comment:序列号"`
	MAC             string     `json:"mac" gorm:"type:varchar(32);comment:MAC地址"`
	FirmwareVersion string     `json:"firmware_version" gorm:"type:varchar(32);comment:固件版本"`
	Status          string     `json:"status" gorm:"type:varchar(16);not null;default:offline;index;comment:设备状态"`
	LastSeen        *time.Time `json:"last_seen" gorm:"comment:最后心跳时间"`
	LocationLat     *float64   `json:"location_lat" gorm:"comment:纬度"`
	LocationLng     *float64   `json:"location_lng" gorm:"comment:经度"`
	Address         string     `json:"address" gorm:"type:varchar(255);comment:投放地址"`
}

// TableName 指定表名
func (Device) TableName() string {
	return "devices"
}

// DeviceStatusLog 设备状态上报流水
type DeviceStatusLog struct {
	ID        uint64            `json:"id" gorm:"primaryKey;autoIncrement;comment:主键ID"`
	DeviceID  uint64            `json:"device_id" gorm:"not null;index;comment:设备ID"`
	Status    string            `json:"status" gorm:"type:varchar(16);not null;comment:上报状态"`
	Payload   basemodel.JSONMap `json:"payload" gorm:"type:json;comment:上报原始内容"`
	CreatedAt time.Time         `json:"created_at" gorm:"autoCreateTime;index;comment:上报时间"`
}

// TableName 指定表名
func (DeviceStatusLog) TableName() string {
	return "device_status_logs"
}

// DeviceBin 设备料仓
type DeviceBin struct {
	basemodel.BaseModel
	DeviceID   uint64     `json:"device_id" gorm:"not null;uniqueIndex:uk_device_bin;comment:设备ID"`
	BinIndex   int        `json:"bin_index" gorm:"not null;uniqueIndex:uk_device_bin;comment:仓位序号"`
	MaterialID *uint64    `json:"material_id" gorm:"comment:物料ID"`
	Remaining  float64    `json:"remaining" gorm:"not null;default:0;comment:剩余量"`
	Capacity   float64    `json:"capacity" gorm:"not null;default:0;comment:容量"`
	Unit       string     `json:"unit" gorm:"type:varchar(16);comment:计量单位"`
	Threshold  float64    `json:"threshold" gorm:"not null;default:0;comment:低库存阈值"`
	LastSyncAt *time.Time `json:"last_sync_at" gorm:"comment:最后同步时间"`
}

// TableName 指定表名
func (DeviceBin) TableName() string {
	return "device_bins"
}

// IsLow 是否低于低库存阈值
func (b *DeviceBin) IsLow() bool {
	return b.Threshold > 0 && b.Remaining < b.Threshold
}

// Material 物料字典，设备首次上报未知物料时自动建档
type Material struct {
	basemodel.BaseModel
	Code     string `json:"code" gorm:"type:varchar(64);not null;uniqueIndex;comment:物料编码"`
	Name     string `json:"name" gorm:"type:varchar(64);not null;comment:物料名称"`
	Unit     string `json:"unit" gorm:"type:varchar(16);comment:计量单位"`
	IsActive bool   `json:"is_active" gorm:"not null;default:true;comment:是否启用"`
}

// TableName 指定表名
func (Material) TableName() string {
	return "material_catalog"
}
