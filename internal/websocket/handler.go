/**
 * WebSocket接入处理器
 * @author: Sun977
 * @date: 2026.03.27
 * @description: HTTP升级为WebSocket连接，鉴权在连接建立后的首个事件里完成
 */
package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"vendmaster/internal/config"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
)

// Handler WebSocket接入处理器
type Handler struct {
	hub          *Hub
	upgrader     gws.Upgrader
	maxConns     int           // 0表示不限制
	pingInterval time.Duration // 0使用默认ping间隔
}

// NewHandler 创建WebSocket接入处理器
func NewHandler(hub *Hub, cfg *config.WebSocketConfig) *Handler {
	h := &Handler{hub: hub}

	readBuf, writeBuf := 4096, 4096
	if cfg != nil {
		if cfg.ReadBufferSize > 0 {
			readBuf = cfg.ReadBufferSize
		}
		if cfg.WriteBufferSize > 0 {
			writeBuf = cfg.WriteBufferSize
		}
		h.maxConns = cfg.MaxConnections
		h.pingInterval = cfg.HeartbeatInterval
	}

	h.upgrader = gws.Upgrader{
		ReadBufferSize:  readBuf,
		WriteBufferSize: writeBuf,
	}
	if cfg == nil || !cfg.CheckOrigin {
		// 设备固件与管理前端来源不固定，跨域校验交给反向代理层
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
	// check_origin开启时保持gorilla默认的同源校验

	return h
}

// Serve 处理WebSocket升级请求 [GET /ws]
func (h *Handler) Serve(c *gin.Context) {
	if h.maxConns > 0 && h.hub.ConnectionCount() >= h.maxConns {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.LogSystemEvent("websocket", "upgrade_failed", "WebSocket升级失败", logrus.WarnLevel, map[string]interface{}{
			"error":     err.Error(),
			"client_ip": utils.GetClientIP(c),
		})
		return
	}

	client := newClient(h.hub, conn, utils.GetClientIP(c))
	// ping间隔必须小于pong超时，否则读超时会先于ping触发
	if h.pingInterval > 0 && h.pingInterval < pongWait {
		client.pingInterval = h.pingInterval
	}
	go client.writePump()
	go client.readPump()
}
