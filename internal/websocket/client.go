/**
 * WebSocket客户端连接
 * @author: Sun977
 * @date: 2026.03.27
 * @description: 单条WebSocket连接的读写泵与安全发送
 * @func: readPump处理入站事件，writePump带心跳保活，SafeSend防止向已关闭通道写入
 */
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"vendmaster/internal/pkg/logger"
)

const (
	// writeWait 单次写超时
	writeWait = 10 * time.Second
	// pongWait 未收到pong判定连接死亡的时间
	pongWait = 60 * time.Second
	// pingPeriod ping间隔，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize 入站消息大小上限
	maxMessageSize = 64 * 1024
	// sendBufferSize 出站缓冲条数
	sendBufferSize = 64
)

// 客户端类型
const (
	clientKindDevice = "device" // 设备连接
	clientKindAdmin  = "admin"  // 管理端连接
)

// Event WebSocket事件信封，双向统一格式
type Event struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Client 单条WebSocket连接
type Client struct {
	hub  *Hub
	conn *gws.Conn
	send chan []byte

	closeOnce sync.Once
	closed    bool
	closedMu  sync.Mutex

	pingInterval time.Duration // ping间隔，配置覆盖

	// 鉴权后填充
	kind       string // device / admin
	deviceNo   string // 设备连接的设备编号
	userID     uint64 // 管理端连接的用户ID
	username   string // 管理端用户名
	role       string // 管理端角色
	merchantID uint64 // 管理端所属商户
	clientIP   string
}

// newClient 创建客户端连接
func newClient(hub *Hub, conn *gws.Conn, clientIP string) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		clientIP:     clientIP,
		pingInterval: pingPeriod,
	}
}

// SafeSend 线程安全地写入发送缓冲
// 连接已关闭或缓冲已满返回false，调用方据此决定走兜底通道
// 锁必须覆盖send写入本身：只在检查closed时持锁，检查和写入之间close掉通道会触发panic
func (c *Client) SafeSend(message []byte) bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// SendEvent 发送一个事件信封
func (c *Client) SendEvent(event string, data map[string]interface{}) bool {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return false
	}
	return c.SafeSend(payload)
}

// close 关闭发送通道，幂等
// close(send)和closed标记在同一临界区内完成，与SafeSend互斥
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.closedMu.Lock()
		defer c.closedMu.Unlock()
		c.closed = true
		close(c.send)
	})
}

// readPump 读取并分发入站事件 [每连接一个goroutine]
func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			logger.LogSystemEvent("websocket", "panic", "连接读泵异常退出", logrus.ErrorLevel, map[string]interface{}{
				"panic":     r,
				"client_ip": c.clientIP,
			})
		}
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure) {
				logger.LogSystemEvent("websocket", "read_error", "连接异常断开", logrus.DebugLevel, map[string]interface{}{
					"error":     err.Error(),
					"client_ip": c.clientIP,
				})
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.SendEvent("error", map[string]interface{}{"message": "invalid event format"})
			continue
		}

		c.hub.handleEvent(c, &event)
	}
}

// writePump 发送出站消息并周期性ping保活 [每连接一个goroutine]
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 发送通道已关闭，通知对端正常下线
				_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gws.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
