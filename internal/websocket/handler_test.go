package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vendmaster/internal/config"
)

func TestNewHandlerAppliesConfig(t *testing.T) {
	hub := newTestHub()

	h := NewHandler(hub, &config.WebSocketConfig{
		ReadBufferSize:    1024,
		WriteBufferSize:   2048,
		CheckOrigin:       false,
		HeartbeatInterval: 5 * time.Second,
		MaxConnections:    100,
	})

	assert.Equal(t, 1024, h.upgrader.ReadBufferSize)
	assert.Equal(t, 2048, h.upgrader.WriteBufferSize)
	assert.Equal(t, 5*time.Second, h.pingInterval)
	assert.Equal(t, 100, h.maxConns)
	// check_origin关闭时放行所有来源
	assert.NotNil(t, h.upgrader.CheckOrigin)
	assert.True(t, h.upgrader.CheckOrigin(nil))
}

func TestNewHandlerDefaults(t *testing.T) {
	hub := newTestHub()

	h := NewHandler(hub, nil)
	assert.Equal(t, 4096, h.upgrader.ReadBufferSize)
	assert.Equal(t, 4096, h.upgrader.WriteBufferSize)
	assert.Equal(t, 0, h.maxConns)

	// 缓冲配置为0时回退默认值
	h = NewHandler(hub, &config.WebSocketConfig{})
	assert.Equal(t, 4096, h.upgrader.ReadBufferSize)
	assert.Equal(t, 4096, h.upgrader.WriteBufferSize)
}

func TestNewHandlerCheckOriginEnabled(t *testing.T) {
	hub := newTestHub()

	// check_origin开启时交给gorilla默认的同源校验
	h := NewHandler(hub, &config.WebSocketConfig{CheckOrigin: true})
	assert.Nil(t, h.upgrader.CheckOrigin)
}

func TestConnectionCount(t *testing.T) {
	hub := newTestHub()
	assert.Equal(t, 0, hub.ConnectionCount())

	hub.registerDevice("VM-001", newDeviceClient(hub, "VM-001"))
	admin := newClient(hub, nil, "127.0.0.1")
	admin.kind = clientKindAdmin
	hub.registerAdmin(admin)

	assert.Equal(t, 2, hub.ConnectionCount())
}
