/*
 * @author: sun977
 * @date: 2026.03.12
 * @description: 通用的工具包
 * @func:
 */

package utils

import (
	"context"

	"github.com/gin-gonic/gin"

	"vendmaster/internal/pkg/auth"
)

// ContextKey 类型用于标准上下文键的定义，避免使用裸字符串造成键冲突
type ContextKey string

// ContextKeyClientIP 标准上下文中存储客户端IP的统一键
const ContextKeyClientIP ContextKey = "client_ip"

// GetClientIP 从Gin上下文获取标准化后的客户端IP
// gin自带的ClientIP已处理X-Forwarded-For，这里再做一次格式标准化
func GetClientIP(c *gin.Context) string {
	return NormalizeIP(c.ClientIP())
}

// GetRequestID 从请求头获取追踪ID，没有则返回空字符串
// 由logging中间件负责生成并写回响应头
func GetRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// GetCurrentUserIDFromGinContext 从 Gin 上下文中提取当前用户ID
// 如果不存在则返回0，轻校验
// 来源：user_id 由JWT中间件写入Gin上下文 GinJWTAuthMiddleware() 中
func GetCurrentUserIDFromGinContext(c *gin.Context) uint {
	if v, ok := c.Get("user_id"); ok {
		if id, ok2 := v.(uint); ok2 {
			return id
		}
	}
	return 0
}

// GetClaimsFromGinContext 从 Gin 上下文中提取JWT声明
// 来源：claims 由JWT中间件写入Gin上下文 GinJWTAuthMiddleware() 中
func GetClaimsFromGinContext(c *gin.Context) (*auth.JWTClaims, bool) {
	if v, ok := c.Get("claims"); ok {
		if claims, ok2 := v.(*auth.JWTClaims); ok2 {
			return claims, true
		}
	}
	return nil, false
}

// GetClientIPFromContext 从标准上下文读取客户端IP（统一键）
// 适用范围：service 层以下获取当前 clientIP 使用
// 说明：
// - 使用 ContextKeyClientIP 作为唯一键，保证读写一致，跨包可用
// - 如果不存在或类型不匹配，返回空字符串
func GetClientIPFromContext(ctx context.Context) string {
	v := ctx.Value(ContextKeyClientIP)
	if ip, ok := v.(string); ok {
		return ip
	}
	return ""
}
