/**
 * WebSocket连接中枢
 * @author: Sun977
 * @date: 2026.03.27
 * @description: 设备与管理端连接注册表，实时指令推送与事件广播
 * @func:
 * 	1.设备连接注册表(设备编号->连接)，重复连接踢旧保新
 * 	2.PushCommand 指令实时推送(投递队列的Pusher实现)
 * 	3.BroadcastToAdmins 管理端广播(回收服务的Broadcaster实现)
 * 	4.设备/管理端事件分发:鉴权、心跳、结果上报、直发指令
 */
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	commandModel "vendmaster/internal/model/command"
	"vendmaster/internal/pkg/auth"
	"vendmaster/internal/pkg/logger"
	redisRepo "vendmaster/internal/repo/redis"
	commandService "vendmaster/internal/service/command"
	deviceService "vendmaster/internal/service/device"
)

// Hub WebSocket连接中枢
// 所有注册表访问都持锁，事件处理在各连接的readPump goroutine里并发执行
type Hub struct {
	mu      sync.RWMutex
	devices map[string]*Client // 设备编号 -> 连接
	admins  map[*Client]bool   // 管理端连接集合

	deviceSvc    deviceService.DeviceService
	reconcileSvc commandService.ReconcileService
	dispatchSvc  commandService.DispatchService
	presenceRepo *redisRepo.PresenceRepository
	jwtManager   *auth.JWTManager
	presenceTTL  time.Duration
}

// NewHub 创建连接中枢
func NewHub(deviceSvc deviceService.DeviceService, reconcileSvc commandService.ReconcileService, dispatchSvc commandService.DispatchService, presenceRepo *redisRepo.PresenceRepository, jwtManager *auth.JWTManager, presenceTTL time.Duration) *Hub {
	if presenceTTL <= 0 {
		presenceTTL = 90 * time.Second
	}

	return &Hub{
		devices:      make(map[string]*Client),
		admins:       make(map[*Client]bool),
		deviceSvc:    deviceSvc,
		reconcileSvc: reconcileSvc,
		dispatchSvc:  dispatchSvc,
		presenceRepo: presenceRepo,
		jwtManager:   jwtManager,
		presenceTTL:  presenceTTL,
	}
}

// PushCommand 向在线设备实时推送指令，实现投递队列的Pusher接口
// 返回true表示已写入设备连接的发送缓冲
func (h *Hub) PushCommand(deviceNo string, cmd *commandModel.Command) bool {
	h.mu.RLock()
	client, ok := h.devices[deviceNo]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	return client.SendEvent("new_command", map[string]interface{}{
		"command_id": cmd.CommandID,
		"type":       cmd.CommandType,
		"payload":    map[string]interface{}(cmd.Payload),
		"issued_at":  cmd.CreatedAt.Format(time.RFC3339),
	})
}

// BroadcastToAdmins 向全部管理端连接广播事件，实现回收服务的Broadcaster接口
func (h *Hub) BroadcastToAdmins(event string, data map[string]interface{}) {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.admins {
		client.SafeSend(payload)
	}
}

// OnlineDevices 当前通过WebSocket在线的设备编号
func (h *Hub) OnlineDevices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]string, 0, len(h.devices))
	for deviceNo := range h.devices {
		devices = append(devices, deviceNo)
	}
	return devices
}

// ConnectionCount 当前已注册连接总数(设备+管理端)，接入层据此限流
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices) + len(h.admins)
}

// registerDevice 注册设备连接，同一设备重复连接踢旧保新
func (h *Hub) registerDevice(deviceNo string, client *Client) {
	h.mu.Lock()
	old, exists := h.devices[deviceNo]
	h.devices[deviceNo] = client
	h.mu.Unlock()

	if exists && old != client {
		old.close()
	}

	if h.presenceRepo != nil {
		_ = h.presenceRepo.SetOnline(context.Background(), deviceNo, h.presenceTTL)
	}

	logger.LogSystemEvent("websocket", "device_online", "设备WebSocket已连接", logrus.InfoLevel, map[string]interface{}{
		"device_no": deviceNo,
		"client_ip": client.clientIP,
	})

	h.BroadcastToAdmins("device_online", map[string]interface{}{
		"device_no": deviceNo,
	})
}

// registerAdmin 注册管理端连接
func (h *Hub) registerAdmin(client *Client) {
	h.mu.Lock()
	h.admins[client] = true
	h.mu.Unlock()
}

// unregister 连接断开后的清理
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	var deviceOffline string
	switch client.kind {
	case clientKindDevice:
		// 已被新连接顶替时注册表里不再是自己，不能误删
		if current, ok := h.devices[client.deviceNo]; ok && current == client {
			delete(h.devices, client.deviceNo)
			deviceOffline = client.deviceNo
		}
	case clientKindAdmin:
		delete(h.admins, client)
	}
	h.mu.Unlock()

	client.close()

	if deviceOffline != "" {
		if h.presenceRepo != nil {
			_ = h.presenceRepo.SetOffline(context.Background(), deviceOffline)
		}
		h.BroadcastToAdmins("device_offline", map[string]interface{}{
			"device_no": deviceOffline,
		})
	}
}

// handleEvent 入站事件分发
// 鉴权事件之外的所有事件都要求连接已完成鉴权
func (h *Hub) handleEvent(client *Client, event *Event) {
	switch event.Event {
	case "device_auth":
		h.handleDeviceAuth(client, event.Data)
	case "admin_auth":
		h.handleAdminAuth(client, event.Data)
	case "device_heartbeat":
		h.handleDeviceHeartbeat(client)
	case "device_command_result":
		h.handleDeviceCommandResult(client, event.Data)
	case "admin_send_command":
		h.handleAdminSendCommand(client, event.Data)
	default:
		client.SendEvent("error", map[string]interface{}{"message": "unknown event: " + event.Event})
	}
}

// handleDeviceAuth 设备鉴权 [device_no + api_key]
func (h *Hub) handleDeviceAuth(client *Client, data map[string]interface{}) {
	deviceNo, _ := data["device_no"].(string)
	apiKey, _ := data["api_key"].(string)
	if deviceNo == "" || apiKey == "" {
		client.SendEvent("auth_result", map[string]interface{}{"ok": false, "message": "missing device_no or api_key"})
		return
	}

	if _, err := h.deviceSvc.VerifyAPIKey(deviceNo, apiKey); err != nil {
		client.SendEvent("auth_result", map[string]interface{}{"ok": false, "message": "invalid credentials"})
		return
	}

	client.kind = clientKindDevice
	client.deviceNo = deviceNo
	h.registerDevice(deviceNo, client)

	client.SendEvent("auth_result", map[string]interface{}{"ok": true, "device_no": deviceNo})
}

// handleAdminAuth 管理端鉴权 [JWT access token]
func (h *Hub) handleAdminAuth(client *Client, data map[string]interface{}) {
	token, _ := data["token"].(string)
	if token == "" {
		client.SendEvent("auth_result", map[string]interface{}{"ok": false, "message": "missing token"})
		return
	}

	claims, err := h.jwtManager.ValidateAccessToken(token)
	if err != nil {
		client.SendEvent("auth_result", map[string]interface{}{"ok": false, "message": "invalid token"})
		return
	}

	client.kind = clientKindAdmin
	client.userID = uint64(claims.UserID)
	client.username = claims.Username
	client.role = claims.Role
	client.merchantID = uint64(claims.MerchantID)
	h.registerAdmin(client)

	client.SendEvent("auth_result", map[string]interface{}{"ok": true, "username": claims.Username})
}

// handleDeviceHeartbeat 设备心跳，续期在线状态并刷新last_seen
func (h *Hub) handleDeviceHeartbeat(client *Client) {
	if client.kind != clientKindDevice {
		client.SendEvent("error", map[string]interface{}{"message": "not authenticated"})
		return
	}

	if h.presenceRepo != nil {
		_ = h.presenceRepo.SetOnline(context.Background(), client.deviceNo, h.presenceTTL)
	}
	_ = h.deviceSvc.Heartbeat(client.deviceNo)

	client.SendEvent("heartbeat_ack", nil)
}

// handleDeviceCommandResult 设备通过WebSocket上报指令结果
// 与HTTP上报共用回收服务，语义完全一致
func (h *Hub) handleDeviceCommandResult(client *Client, data map[string]interface{}) {
	if client.kind != clientKindDevice {
		client.SendEvent("error", map[string]interface{}{"message": "not authenticated"})
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		client.SendEvent("error", map[string]interface{}{"message": "invalid result payload"})
		return
	}
	var req commandModel.ResultReportRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.CommandID == "" {
		client.SendEvent("error", map[string]interface{}{"message": "invalid result payload"})
		return
	}

	if err := h.reconcileSvc.ReportResult(client.deviceNo, &req, client.clientIP); err != nil {
		client.SendEvent("result_ack", map[string]interface{}{"ok": false, "command_id": req.CommandID})
		return
	}

	client.SendEvent("result_ack", map[string]interface{}{"ok": true, "command_id": req.CommandID})
}

// handleAdminSendCommand 管理端直发单设备指令
func (h *Hub) handleAdminSendCommand(client *Client, data map[string]interface{}) {
	if client.kind != clientKindAdmin {
		client.SendEvent("error", map[string]interface{}{"message": "not authenticated"})
		return
	}

	deviceNo, _ := data["device_no"].(string)
	commandType, _ := data["type"].(string)
	if commandType == "" {
		commandType, _ = data["command_type"].(string)
	}
	if deviceNo == "" || commandType == "" {
		client.SendEvent("send_result", map[string]interface{}{"ok": false, "message": "missing device_no or type"})
		return
	}
	payload, _ := data["payload"].(map[string]interface{})

	op := commandService.Operator{
		UserID:     client.userID,
		Username:   client.username,
		Role:       client.role,
		MerchantID: client.merchantID,
	}
	cmd, err := h.dispatchSvc.DispatchSingle(op, deviceNo, commandType, payload, 0, 0)
	if err != nil {
		client.SendEvent("send_result", map[string]interface{}{"ok": false, "message": err.Error()})
		return
	}

	client.SendEvent("send_result", map[string]interface{}{"ok": true, "command_id": cmd.CommandID})
}
