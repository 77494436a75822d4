/**
 * 中间件:日志相关中间件
 * @author: sun977
 * @date: 2026.03.27
 * @description: 定义日志中间件
 * @func:
 *   - GinLoggingMiddleware Gin日志中间件[同时把客户端IP存储到Gin上下文和标准上下文,供后续使用]
 */
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
)

// GinLoggingMiddleware Gin日志中间件
// 记录所有HTTP请求的访问日志和错误日志
// 使用方式: router.Use(middlewareManager.GinLoggingMiddleware())
func (m *MiddlewareManager) GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 提取并格式化客户端IP
		clientIP := utils.GetClientIP(c)
		XRequestID := utils.GetRequestID(c)
		userAgent := c.GetHeader("User-Agent")

		// 配置的跳过路径(健康检查、设备高频轮询等)不记访问日志
		for _, path := range m.securityConfig.Logging.SkipPaths {
			if c.FullPath() == path || c.Request.URL.Path == path {
				c.Next()
				return
			}
		}

		// 存储到Gin上下文
		c.Set("client_ip", clientIP) // 这个是标准化后的可以用作业务使用的客户端IP
		// Gin上下文通过c.Set()方式存储值，后续可以通过c.Get("xx_key")获取

		// 存储到标准上下文
		// handler中使用Gin上下文，service层以下使用标准上下文，
		// 这里用统一键把客户端IP同步进标准上下文
		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyClientIP, clientIP)
		c.Request = c.Request.WithContext(ctx)

		// 处理请求
		c.Next()

		// 记录访问日志
		duration := time.Since(start)
		statusCode := c.Writer.Status()

		// 获取用户信息（如果已认证）
		userID := utils.GetCurrentUserIDFromGinContext(c)
		username := c.GetString("username")

		logger.LogBusinessOperation("http_request", userID, username, clientIP, XRequestID, "success", "API Request", map[string]interface{}{
			"operation":     "http_request",
			"method":        c.Request.Method,
			"url":           c.Request.URL.String(),
			"status_code":   statusCode,
			"duration":      duration.Milliseconds(),
			"client_ip":     clientIP,
			"username":      username,
			"user_agent":    userAgent,
			"X-Request-ID":  XRequestID,
			"referer":       c.Request.Referer(),
			"request_size":  c.Request.ContentLength,
			"response_size": int64(c.Writer.Size()),
			"timestamp":     logger.NowFormatted(),
		})

		// 慢请求告警
		if threshold := m.securityConfig.Logging.SlowRequestThreshold; threshold > 0 && duration > threshold {
			logger.LogWarn("慢请求", XRequestID, userID, clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
				"operation": "slow_request",
				"duration":  duration.Milliseconds(),
				"threshold": threshold.Milliseconds(),
			})
		}

		// 如果是错误状态码，记录错误日志
		if statusCode >= 400 {
			errorMsg := ""
			if errors := c.Errors; len(errors) > 0 {
				errorMsg = errors.String()
			} else {
				errorMsg = http.StatusText(statusCode)
			}

			logger.LogError(fmt.Errorf("HTTP %d: %s", statusCode, errorMsg), XRequestID, userID, clientIP, "http_request", c.Request.Method, map[string]interface{}{
				"operation":    "http_request",
				"method":       c.Request.Method,
				"url":          c.Request.URL.String(),
				"status_code":  statusCode,
				"username":     username,
				"client_ip":    clientIP,
				"user_agent":   userAgent,
				"X-Request-ID": XRequestID,
				"timestamp":    logger.NowFormatted(),
			})
		}
	}
}
