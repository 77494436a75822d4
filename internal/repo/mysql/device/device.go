/**
 * 设备仓库层:设备数据访问
 * @author: Sun977
 * @date: 2026.03.22
 * @description: 设备数据访问层，专注于数据操作，不包含业务逻辑
 * @func: 设备CRUD、状态流水、料仓与物料字典
 */
package device

import (
	"time"

	"gorm.io/gorm"

	deviceModel "vendmaster/internal/model/device"
	"vendmaster/internal/pkg/logger"
)

// DeviceRepository 设备仓库接口定义 [定义接口层供上层调用，然后底下实现这些接口]
type DeviceRepository interface {
	// 设备基础数据操作
	Create(device *deviceModel.Device) error
	Update(device *deviceModel.Device) error
	GetByID(id uint64) (*deviceModel.Device, error)
	GetByDeviceNo(deviceNo string) (*deviceModel.Device, error)
	ListByDeviceNos(deviceNos []string, merchantID *uint64) ([]*deviceModel.Device, error)
	GetList(page, pageSize int, merchantID *uint64, status, keyword string) ([]*deviceModel.Device, int64, error)

	// 设备状态管理
	UpdateStatus(id uint64, status string) error
	UpdateFirmware(id uint64, version string) error
	TouchLastSeen(id uint64) error
	CreateStatusLog(log *deviceModel.DeviceStatusLog) error
	CountByStatus(merchantID *uint64) (total int64, online int64, err error)

	// 料仓与物料
	UpsertBin(bin *deviceModel.DeviceBin) error
	ListBins(deviceID uint64) ([]*deviceModel.DeviceBin, error)
	GetMaterialByCode(code string) (*deviceModel.Material, error)
	CreateMaterial(material *deviceModel.Material) error
	GetMaterialsByIDs(ids []uint64) (map[uint64]*deviceModel.Material, error)
}

// deviceRepository 设备仓库实现
type deviceRepository struct {
	db *gorm.DB // 数据库连接
}

// NewDeviceRepository 创建设备仓库实例
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{
		db: db,
	}
}

// Create 创建设备（纯数据访问）
func (r *deviceRepository) Create(device *deviceModel.Device) error {
	result := r.db.Create(device)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.Create", "", map[string]interface{}{
			"operation": "create_device",
			"option":    "deviceRepository.Create",
			"func_name": "repo.device.Create",
			"device_no": device.DeviceNo,
		})
		return result.Error
	}

	return nil
}

// Update 更新设备信息
func (r *deviceRepository) Update(device *deviceModel.Device) error {
	result := r.db.Save(device)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.Update", "", map[string]interface{}{
			"operation": "update_device",
			"option":    "deviceRepository.Update",
			"func_name": "repo.device.Update",
			"device_no": device.DeviceNo,
		})
		return result.Error
	}

	return nil
}

// GetByID 根据主键获取设备
func (r *deviceRepository) GetByID(id uint64) (*deviceModel.Device, error) {
	var device deviceModel.Device

	result := r.db.First(&device, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // 返回nil表示未找到，不是错误
		}
		logger.LogError(result.Error, "", 0, "", "repo.device.GetByID", "", map[string]interface{}{
			"operation": "get_device_by_id",
			"option":    "deviceRepository.GetByID",
			"func_name": "repo.device.GetByID",
			"device_id": id,
		})
		return nil, result.Error
	}

	return &device, nil
}

// GetByDeviceNo 根据设备编号获取设备
func (r *deviceRepository) GetByDeviceNo(deviceNo string) (*deviceModel.Device, error) {
	var device deviceModel.Device

	result := r.db.Where("device_no = ?", deviceNo).First(&device)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // 返回nil表示未找到，不是错误
		}
		logger.LogError(result.Error, "", 0, "", "repo.device.GetByDeviceNo", "", map[string]interface{}{
			"operation": "get_device_by_no",
			"option":    "deviceRepository.GetByDeviceNo",
			"func_name": "repo.device.GetByDeviceNo",
			"device_no": deviceNo,
		})
		return nil, result.Error
	}

	return &device, nil
}

// ListByDeviceNos 批量按设备编号查询，merchantID非空时过滤商户数据范围
// 未命中的编号直接缺席结果集，调用方据此实现部分成功语义
func (r *deviceRepository) ListByDeviceNos(deviceNos []string, merchantID *uint64) ([]*deviceModel.Device, error) {
	if len(deviceNos) == 0 {
		return nil, nil
	}

	query := r.db.Where("device_no IN ?", deviceNos)
	if merchantID != nil {
		query = query.Where("merchant_id = ?", *merchantID)
	}

	var devices []*deviceModel.Device
	result := query.Find(&devices)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.ListByDeviceNos", "", map[string]interface{}{
			"operation": "list_by_device_nos",
			"option":    "deviceRepository.ListByDeviceNos",
			"func_name": "repo.device.ListByDeviceNos",
			"count":     len(deviceNos),
		})
		return nil, result.Error
	}

	return devices, nil
}

// GetList 分页查询设备列表（分页 + 过滤）
func (r *deviceRepository) GetList(page, pageSize int, merchantID *uint64, status, keyword string) ([]*deviceModel.Device, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := r.db.Model(&deviceModel.Device{})
	if merchantID != nil {
		query = query.Where("merchant_id = ?", *merchantID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("device_no LIKE ? OR address LIKE ?", like, like)
	}

	var total int64
	if result := query.Count(&total); result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.GetList", "", map[string]interface{}{
			"operation": "count_devices",
			"option":    "deviceRepository.GetList",
			"func_name": "repo.device.GetList",
		})
		return nil, 0, result.Error
	}

	var devices []*deviceModel.Device
	result := query.Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&devices)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.GetList", "", map[string]interface{}{
			"operation": "list_devices",
			"option":    "deviceRepository.GetList",
			"func_name": "repo.device.GetList",
		})
		return nil, 0, result.Error
	}

	return devices, total, nil
}

// UpdateStatus 更新设备状态
func (r *deviceRepository) UpdateStatus(id uint64, status string) error {
	result := r.db.Model(&deviceModel.Device{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.UpdateStatus", "", map[string]interface{}{
			"operation": "update_device_status",
			"option":    "deviceRepository.UpdateStatus",
			"func_name": "repo.device.UpdateStatus",
			"device_id": id,
			"status":    status,
		})
		return result.Error
	}

	return nil
}

// UpdateFirmware 更新设备固件版本
// 只写单列，避免整条Save覆盖同链路里刚写入的状态
func (r *deviceRepository) UpdateFirmware(id uint64, version string) error {
	result := r.db.Model(&deviceModel.Device{}).
		Where("id = ?", id).
		Update("firmware_version", version)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.UpdateFirmware", "", map[string]interface{}{
			"operation": "update_device_firmware",
			"option":    "deviceRepository.UpdateFirmware",
			"func_name": "repo.device.UpdateFirmware",
			"device_id": id,
			"version":   version,
		})
		return result.Error
	}

	return nil
}

// TouchLastSeen 刷新设备最后心跳时间
func (r *deviceRepository) TouchLastSeen(id uint64) error {
	result := r.db.Model(&deviceModel.Device{}).
		Where("id = ?", id).
		Update("last_seen", time.Now())
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.TouchLastSeen", "", map[string]interface{}{
			"operation": "touch_last_seen",
			"option":    "deviceRepository.TouchLastSeen",
			"func_name": "repo.device.TouchLastSeen",
			"device_id": id,
		})
		return result.Error
	}

	return nil
}

// CreateStatusLog 写入设备状态上报流水
func (r *deviceRepository) CreateStatusLog(log *deviceModel.DeviceStatusLog) error {
	result := r.db.Create(log)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.CreateStatusLog", "", map[string]interface{}{
			"operation": "create_status_log",
			"option":    "deviceRepository.CreateStatusLog",
			"func_name": "repo.device.CreateStatusLog",
			"device_id": log.DeviceID,
		})
		return result.Error
	}

	return nil
}

// CountByStatus 统计设备总数与数据库视角的在线数
func (r *deviceRepository) CountByStatus(merchantID *uint64) (int64, int64, error) {
	query := r.db.Model(&deviceModel.Device{})
	if merchantID != nil {
		query = query.Where("merchant_id = ?", *merchantID)
	}

	var total int64
	if result := query.Session(&gorm.Session{}).Count(&total); result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.CountByStatus", "", map[string]interface{}{
			"operation": "count_devices",
			"option":    "deviceRepository.CountByStatus",
			"func_name": "repo.device.CountByStatus",
		})
		return 0, 0, result.Error
	}

	var online int64
	if result := query.Session(&gorm.Session{}).Where("status = ?", deviceModel.StatusOnline).Count(&online); result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.CountByStatus", "", map[string]interface{}{
			"operation": "count_online_devices",
			"option":    "deviceRepository.CountByStatus",
			"func_name": "repo.device.CountByStatus",
		})
		return 0, 0, result.Error
	}

	return total, online, nil
}

// UpsertBin 按(device_id, bin_index)更新或插入料仓
func (r *deviceRepository) UpsertBin(bin *deviceModel.DeviceBin) error {
	var existing deviceModel.DeviceBin

	result := r.db.Where("device_id = ? AND bin_index = ?", bin.DeviceID, bin.BinIndex).First(&existing)
	if result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		logger.LogError(result.Error, "", 0, "", "repo.device.UpsertBin", "", map[string]interface{}{
			"operation": "get_bin",
			"option":    "deviceRepository.UpsertBin",
			"func_name": "repo.device.UpsertBin",
			"device_id": bin.DeviceID,
			"bin_index": bin.BinIndex,
		})
		return result.Error
	}

	if result.Error == gorm.ErrRecordNotFound {
		if err := r.db.Create(bin).Error; err != nil {
			logger.LogError(err, "", 0, "", "repo.device.UpsertBin", "", map[string]interface{}{
				"operation": "create_bin",
				"option":    "deviceRepository.UpsertBin",
				"func_name": "repo.device.UpsertBin",
				"device_id": bin.DeviceID,
				"bin_index": bin.BinIndex,
			})
			return err
		}
		return nil
	}

	bin.ID = existing.ID
	bin.CreatedAt = existing.CreatedAt
	if err := r.db.Save(bin).Error; err != nil {
		logger.LogError(err, "", 0, "", "repo.device.UpsertBin", "", map[string]interface{}{
			"operation": "update_bin",
			"option":    "deviceRepository.UpsertBin",
			"func_name": "repo.device.UpsertBin",
			"device_id": bin.DeviceID,
			"bin_index": bin.BinIndex,
		})
		return err
	}

	return nil
}

// ListBins 查询设备全部料仓
func (r *deviceRepository) ListBins(deviceID uint64) ([]*deviceModel.DeviceBin, error) {
	var bins []*deviceModel.DeviceBin

	result := r.db.Where("device_id = ?", deviceID).Order("bin_index ASC").Find(&bins)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.ListBins", "", map[string]interface{}{
			"operation": "list_bins",
			"option":    "deviceRepository.ListBins",
			"func_name": "repo.device.ListBins",
			"device_id": deviceID,
		})
		return nil, result.Error
	}

	return bins, nil
}

// GetMaterialByCode 根据物料编码获取物料
func (r *deviceRepository) GetMaterialByCode(code string) (*deviceModel.Material, error) {
	var material deviceModel.Material

	result := r.db.Where("code = ?", code).First(&material)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // 返回nil表示未找到，不是错误
		}
		logger.LogError(result.Error, "", 0, "", "repo.device.GetMaterialByCode", "", map[string]interface{}{
			"operation": "get_material",
			"option":    "deviceRepository.GetMaterialByCode",
			"func_name": "repo.device.GetMaterialByCode",
			"code":      code,
		})
		return nil, result.Error
	}

	return &material, nil
}

// CreateMaterial 创建物料
func (r *deviceRepository) CreateMaterial(material *deviceModel.Material) error {
	result := r.db.Create(material)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.CreateMaterial", "", map[string]interface{}{
			"operation": "create_material",
			"option":    "deviceRepository.CreateMaterial",
			"func_name": "repo.device.CreateMaterial",
			"code":      material.Code,
		})
		return result.Error
	}

	return nil
}

// GetMaterialsByIDs 批量获取物料，返回ID映射
func (r *deviceRepository) GetMaterialsByIDs(ids []uint64) (map[uint64]*deviceModel.Material, error) {
	materials := make(map[uint64]*deviceModel.Material)
	if len(ids) == 0 {
		return materials, nil
	}

	var rows []*deviceModel.Material
	result := r.db.Where("id IN ?", ids).Find(&rows)
	if result.Error != nil {
		logger.LogError(result.Error, "", 0, "", "repo.device.GetMaterialsByIDs", "", map[string]interface{}{
			"operation": "get_materials_by_ids",
			"option":    "deviceRepository.GetMaterialsByIDs",
			"func_name": "repo.device.GetMaterialsByIDs",
			"count":     len(ids),
		})
		return nil, result.Error
	}

	for _, m := range rows {
		materials[m.ID] = m
	}

	return materials, nil
}
