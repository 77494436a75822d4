package websocket

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendmaster/internal/model/basemodel"
	commandModel "vendmaster/internal/model/command"
)

// newTestHub 不依赖外部服务的Hub，只测注册表与推送语义
func newTestHub() *Hub {
	return NewHub(nil, nil, nil, nil, nil, 0)
}

// newDeviceClient 已完成鉴权的设备连接
func newDeviceClient(hub *Hub, deviceNo string) *Client {
	client := newClient(hub, nil, "127.0.0.1")
	client.kind = clientKindDevice
	client.deviceNo = deviceNo
	return client
}

// recvEvent 从发送缓冲读出一个事件信封
func recvEvent(t *testing.T, client *Client) *Event {
	t.Helper()

	select {
	case raw, ok := <-client.send:
		require.True(t, ok, "发送通道已关闭")
		var event Event
		require.NoError(t, json.Unmarshal(raw, &event))
		return &event
	default:
		t.Fatal("发送缓冲为空")
		return nil
	}
}

func TestRegisterDeviceReplacesOldConnection(t *testing.T) {
	hub := newTestHub()

	first := newDeviceClient(hub, "VM-001")
	hub.registerDevice("VM-001", first)

	second := newDeviceClient(hub, "VM-001")
	hub.registerDevice("VM-001", second)

	// 旧连接被踢，发送通道关闭
	assert.False(t, first.SafeSend([]byte("x")))
	assert.True(t, second.SafeSend([]byte("x")))

	hub.mu.RLock()
	current := hub.devices["VM-001"]
	hub.mu.RUnlock()
	assert.Same(t, second, current)
}

func TestUnregisterReplacedConnectionKeepsCurrent(t *testing.T) {
	hub := newTestHub()

	first := newDeviceClient(hub, "VM-001")
	hub.registerDevice("VM-001", first)
	second := newDeviceClient(hub, "VM-001")
	hub.registerDevice("VM-001", second)

	// 被顶替连接的清理不能误删新连接
	hub.unregister(first)

	hub.mu.RLock()
	current, ok := hub.devices["VM-001"]
	hub.mu.RUnlock()
	require.True(t, ok)
	assert.Same(t, second, current)

	hub.unregister(second)

	hub.mu.RLock()
	_, ok = hub.devices["VM-001"]
	hub.mu.RUnlock()
	assert.False(t, ok)
}

func TestOnlineDevices(t *testing.T) {
	hub := newTestHub()
	hub.registerDevice("VM-001", newDeviceClient(hub, "VM-001"))
	hub.registerDevice("VM-002", newDeviceClient(hub, "VM-002"))

	online := hub.OnlineDevices()
	assert.ElementsMatch(t, []string{"VM-001", "VM-002"}, online)
}

func TestPushCommand(t *testing.T) {
	hub := newTestHub()
	client := newDeviceClient(hub, "VM-001")
	hub.registerDevice("VM-001", client)

	cmd := &commandModel.Command{
		CommandID:   "cmd-1",
		CommandType: "make_coffee",
		Payload:     basemodel.JSONMap{"recipe": "latte"},
	}

	require.True(t, hub.PushCommand("VM-001", cmd))

	event := recvEvent(t, client)
	assert.Equal(t, "new_command", event.Event)
	assert.Equal(t, "cmd-1", event.Data["command_id"])
	assert.Equal(t, "make_coffee", event.Data["type"])

	// 不在线的设备推送失败，留给轮询通道
	assert.False(t, hub.PushCommand("VM-GHOST", cmd))
}

func TestBroadcastToAdmins(t *testing.T) {
	hub := newTestHub()

	admin1 := newClient(hub, nil, "127.0.0.1")
	admin1.kind = clientKindAdmin
	admin2 := newClient(hub, nil, "127.0.0.1")
	admin2.kind = clientKindAdmin
	hub.registerAdmin(admin1)
	hub.registerAdmin(admin2)

	hub.BroadcastToAdmins("command_result", map[string]interface{}{
		"command_id": "cmd-1",
		"status":     "success",
	})

	for _, admin := range []*Client{admin1, admin2} {
		event := recvEvent(t, admin)
		assert.Equal(t, "command_result", event.Event)
		assert.Equal(t, "cmd-1", event.Data["command_id"])
	}
}

func TestBroadcastSkipsClosedAdmin(t *testing.T) {
	hub := newTestHub()

	admin := newClient(hub, nil, "127.0.0.1")
	admin.kind = clientKindAdmin
	hub.registerAdmin(admin)
	admin.close()

	// 已关闭的连接不会导致广播panic
	hub.BroadcastToAdmins("device_online", map[string]interface{}{"device_no": "VM-001"})
}

func TestSafeSendBufferFull(t *testing.T) {
	hub := newTestHub()
	client := newClient(hub, nil, "127.0.0.1")

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, client.SafeSend([]byte("x")))
	}
	// 缓冲满后丢弃而不是阻塞
	assert.False(t, client.SafeSend([]byte("overflow")))
}

func TestSafeSendConcurrentClose(t *testing.T) {
	// 并发SafeSend与close不能触发向已关闭通道写入的panic
	for i := 0; i < 50; i++ {
		hub := newTestHub()
		client := newClient(hub, nil, "127.0.0.1")

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 20; k++ {
					client.SafeSend([]byte("x"))
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.close()
		}()
		wg.Wait()

		assert.False(t, client.SafeSend([]byte("after-close")))
	}
}

func TestHandleEventRequiresAuth(t *testing.T) {
	hub := newTestHub()
	client := newClient(hub, nil, "127.0.0.1")

	hub.handleEvent(client, &Event{Event: "device_heartbeat"})
	event := recvEvent(t, client)
	assert.Equal(t, "error", event.Event)
	assert.Equal(t, "not authenticated", event.Data["message"])

	hub.handleEvent(client, &Event{Event: "admin_send_command", Data: map[string]interface{}{
		"device_no": "VM-001",
		"type":      "restart",
	}})
	event = recvEvent(t, client)
	assert.Equal(t, "error", event.Event)
}

func TestHandleEventUnknown(t *testing.T) {
	hub := newTestHub()
	client := newClient(hub, nil, "127.0.0.1")

	hub.handleEvent(client, &Event{Event: "mystery"})
	event := recvEvent(t, client)
	assert.Equal(t, "error", event.Event)
}
