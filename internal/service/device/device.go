/**
 * 服务层:设备服务
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 设备注册、状态上报、物料同步与管理端查询
 * @func:
 * 	1.Register 注册即登记，重复注册视为信息更新
 * 	2.ReportStatus 状态落库+上报流水
 * 	3.ReportMaterials 料仓同步，未知物料自动建档
 * 	4.管理端设备列表/详情/料仓查询
 */
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"vendmaster/internal/model/basemodel"
	deviceModel "vendmaster/internal/model/device"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
	deviceRepo "vendmaster/internal/repo/mysql/device"
	redisRepo "vendmaster/internal/repo/redis"
)

// ErrDeviceNotFound 设备不存在或不在当前商户数据范围内
var ErrDeviceNotFound = errors.New("device not found")

// DeviceService 设备服务接口定义
type DeviceService interface {
	// 设备侧
	Register(req *deviceModel.RegisterRequest, clientIP string) (*deviceModel.RegisterResponse, error)
	ReportStatus(deviceNo string, req *deviceModel.StatusReportRequest) error
	ReportMaterials(deviceNo string, req *deviceModel.MaterialsReportRequest) error
	VerifyAPIKey(deviceNo, apiKey string) (*deviceModel.Device, error)
	Heartbeat(deviceNo string) error

	// 管理端
	GetList(ctx context.Context, merchantID *uint64, page, pageSize int, status, keyword string) ([]*deviceModel.DeviceInfo, int64, error)
	GetDetail(ctx context.Context, merchantID *uint64, deviceNo string) (*deviceModel.DeviceInfo, error)
	ListBins(merchantID *uint64, deviceNo string) ([]*deviceModel.BinInfo, error)
}

// deviceService 设备服务实现
type deviceService struct {
	deviceRepo   deviceRepo.DeviceRepository
	presenceRepo *redisRepo.PresenceRepository
}

// NewDeviceService 创建设备服务实例
func NewDeviceService(devRepo deviceRepo.DeviceRepository, presenceRepo *redisRepo.PresenceRepository) DeviceService {
	return &deviceService{
		deviceRepo:   devRepo,
		presenceRepo: presenceRepo,
	}
}

// Register 设备注册
// 同一device_id重复注册视为信息更新；api_key只在首次注册时生成并返回一次
func (s *deviceService) Register(req *deviceModel.RegisterRequest, clientIP string) (*deviceModel.RegisterResponse, error) {
	device, err := s.deviceRepo.GetByDeviceNo(req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("查询设备失败: %v", err)
	}

	now := time.Now()
	if device == nil {
		device = &deviceModel.Device{
			DeviceNo:        req.DeviceID,
			APIKey:          utils.NewDeviceAPIKey(),
			Model:           req.Model,
			Serial:          req.Serial,
			MAC:             req.MAC,
			FirmwareVersion: req.FirmwareVersion,
			Status:          deviceModel.StatusOffline,
			LastSeen:        &now,
			LocationLat:     req.LocationLat,
			LocationLng:     req.LocationLng,
			Address:         req.Address,
		}
		if err := s.deviceRepo.Create(device); err != nil {
			return nil, fmt.Errorf("创建设备失败: %v", err)
		}

		logger.LogSystemEvent("device", "register", "新设备注册", logrus.InfoLevel, map[string]interface{}{
			"device_no": device.DeviceNo,
			"model":     device.Model,
			"client_ip": clientIP,
		})

		return &deviceModel.RegisterResponse{
			OK:       true,
			DeviceNo: device.DeviceNo,
			APIKey:   device.APIKey,
			IsNew:    true,
		}, nil
	}

	// 重复注册：更新可变信息，api_key不回传
	device.Model = req.Model
	device.Serial = req.Serial
	device.MAC = req.MAC
	device.FirmwareVersion = req.FirmwareVersion
	if req.LocationLat != nil {
		device.LocationLat = req.LocationLat
	}
	if req.LocationLng != nil {
		device.LocationLng = req.LocationLng
	}
	if req.Address != "" {
		device.Address = req.Address
	}
	device.LastSeen = &now
	if err := s.deviceRepo.Update(device); err != nil {
		return nil, fmt.Errorf("更新设备信息失败: %v", err)
	}

	return &deviceModel.RegisterResponse{
		OK:       true,
		DeviceNo: device.DeviceNo,
		IsNew:    false,
	}, nil
}

// ReportStatus 设备状态上报
// 状态写设备表，完整上报内容落流水表
func (s *deviceService) ReportStatus(deviceNo string, req *deviceModel.StatusReportRequest) error {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return ErrDeviceNotFound
	}

	status := req.Status
	if status == "" {
		status = deviceModel.StatusOnline
	}

	if err := s.deviceRepo.UpdateStatus(device.ID, status); err != nil {
		return fmt.Errorf("更新设备状态失败: %v", err)
	}
	_ = s.deviceRepo.TouchLastSeen(device.ID)

	payload := map[string]interface{}{
		"status":           status,
		"firmware_version": req.FirmwareVersion,
		"wifi_ssid":        req.WifiSSID,
		"uptime_seconds":   req.UptimeSeconds,
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	for k, v := range req.Extra {
		payload[k] = v
	}

	statusLog := &deviceModel.DeviceStatusLog{
		DeviceID: device.ID,
		Status:   status,
		Payload:  basemodel.JSONMap(payload),
	}
	if err := s.deviceRepo.CreateStatusLog(statusLog); err != nil {
		return fmt.Errorf("写入状态流水失败: %v", err)
	}

	// 固件版本只改单列，整条Save会把上面刚写的状态用旧快照盖回去
	if req.FirmwareVersion != "" && req.FirmwareVersion != device.FirmwareVersion {
		_ = s.deviceRepo.UpdateFirmware(device.ID, req.FirmwareVersion)
	}

	return nil
}

// ReportMaterials 设备物料同步
// 上报中出现的未知物料编码自动建档，料仓按(device_id, bin_index)覆盖
func (s *deviceService) ReportMaterials(deviceNo string, req *deviceModel.MaterialsReportRequest) error {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return ErrDeviceNotFound
	}

	now := time.Now()
	for _, report := range req.Bins {
		var materialID *uint64
		if report.MaterialCode != "" {
			material, err := s.deviceRepo.GetMaterialByCode(report.MaterialCode)
			if err != nil {
				return fmt.Errorf("查询物料失败: %v", err)
			}
			if material == nil {
				material = &deviceModel.Material{
					Code: report.MaterialCode,
					Name: report.MaterialName,
					Unit: report.Unit,
				}
				if material.Name == "" {
					material.Name = report.MaterialCode
				}
				if err := s.deviceRepo.CreateMaterial(material); err != nil {
					return fmt.Errorf("物料建档失败: %v", err)
				}
			}
			materialID = &material.ID
		}

		bin := &deviceModel.DeviceBin{
			DeviceID:   device.ID,
			BinIndex:   report.BinIndex,
			MaterialID: materialID,
			Remaining:  report.Remaining,
			Capacity:   report.Capacity,
			Unit:       report.Unit,
			Threshold:  report.Threshold,
			LastSyncAt: &now,
		}
		if err := s.deviceRepo.UpsertBin(bin); err != nil {
			return fmt.Errorf("同步料仓失败: %v", err)
		}
	}

	_ = s.deviceRepo.TouchLastSeen(device.ID)

	return nil
}

// VerifyAPIKey 校验设备编号与API密钥 [WebSocket设备鉴权使用]
func (s *deviceService) VerifyAPIKey(deviceNo, apiKey string) (*deviceModel.Device, error) {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return nil, fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil || device.APIKey == "" || device.APIKey != apiKey {
		return nil, ErrDeviceNotFound
	}

	return device, nil
}

// Heartbeat 刷新设备心跳时间 [WebSocket心跳事件使用]
func (s *deviceService) Heartbeat(deviceNo string) error {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return ErrDeviceNotFound
	}

	return s.deviceRepo.TouchLastSeen(device.ID)
}

// GetList 管理端分页查询设备列表，叠加Redis实时在线标记
func (s *deviceService) GetList(ctx context.Context, merchantID *uint64, page, pageSize int, status, keyword string) ([]*deviceModel.DeviceInfo, int64, error) {
	devices, total, err := s.deviceRepo.GetList(page, pageSize, merchantID, status, keyword)
	if err != nil {
		return nil, 0, fmt.Errorf("查询设备列表失败: %v", err)
	}

	infos := make([]*deviceModel.DeviceInfo, 0, len(devices))
	for _, device := range devices {
		infos = append(infos, s.toDeviceInfo(ctx, device))
	}

	return infos, total, nil
}

// GetDetail 管理端查询设备详情
func (s *deviceService) GetDetail(ctx context.Context, merchantID *uint64, deviceNo string) (*deviceModel.DeviceInfo, error) {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return nil, fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	if merchantID != nil && device.MerchantID != *merchantID {
		return nil, ErrDeviceNotFound
	}

	return s.toDeviceInfo(ctx, device), nil
}

// ListBins 管理端查询设备料仓，带低库存标记与物料名称
func (s *deviceService) ListBins(merchantID *uint64, deviceNo string) ([]*deviceModel.BinInfo, error) {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return nil, fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	if merchantID != nil && device.MerchantID != *merchantID {
		return nil, ErrDeviceNotFound
	}

	bins, err := s.deviceRepo.ListBins(device.ID)
	if err != nil {
		return nil, fmt.Errorf("查询料仓失败: %v", err)
	}

	var materialIDs []uint64
	for _, bin := range bins {
		if bin.MaterialID != nil {
			materialIDs = append(materialIDs, *bin.MaterialID)
		}
	}
	materials, err := s.deviceRepo.GetMaterialsByIDs(materialIDs)
	if err != nil {
		return nil, fmt.Errorf("查询物料失败: %v", err)
	}

	infos := make([]*deviceModel.BinInfo, 0, len(bins))
	for _, bin := range bins {
		info := &deviceModel.BinInfo{
			BinIndex:   bin.BinIndex,
			Remaining:  bin.Remaining,
			Capacity:   bin.Capacity,
			Unit:       bin.Unit,
			Threshold:  bin.Threshold,
			Low:        bin.IsLow(),
			LastSyncAt: bin.LastSyncAt,
		}
		if bin.MaterialID != nil {
			if material, ok := materials[*bin.MaterialID]; ok {
				info.MaterialCode = material.Code
				info.MaterialName = material.Name
			}
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// toDeviceInfo 实体转列表项，在线标记优先取Redis实时状态
func (s *deviceService) toDeviceInfo(ctx context.Context, device *deviceModel.Device) *deviceModel.DeviceInfo {
	online := device.Status == deviceModel.StatusOnline
	if s.presenceRepo != nil {
		if ok, err := s.presenceRepo.IsOnline(ctx, device.DeviceNo); err == nil {
			online = ok
		}
	}

	return &deviceModel.DeviceInfo{
		ID:              device.ID,
		DeviceNo:        device.DeviceNo,
		MerchantID:      device.MerchantID,
		Model:           device.Model,
		FirmwareVersion: device.FirmwareVersion,
		Status:          device.Status,
		Online:          online,
		LastSeen:        device.LastSeen,
		Address:         device.Address,
		CreatedAt:       device.CreatedAt,
	}
}
