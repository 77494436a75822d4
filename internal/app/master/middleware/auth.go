/**
 * 中间件:认证相关中间件
 * @author: sun977
 * @date: 2026.03.27
 * @description: 定义认证相关中间件
 * @func:
 *   - GinJWTAuthMiddleware: Gin JWT认证中间件[令牌由运营平台签发，本服务只校验]
 *   - GinRequireSuperAdmin: 超级管理员角色校验中间件
 */
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vendmaster/internal/model"
	"vendmaster/internal/pkg/auth"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
)

// =============================================================================
// JWT认证相关中间件
// =============================================================================

// GinJWTAuthMiddleware Gin JWT认证中间件
// 验证请求头中的JWT令牌，并将用户信息存储到Gin上下文中
// 使用方式: router.Use(middlewareManager.GinJWTAuthMiddleware())
func (m *MiddlewareManager) GinJWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 配置的跳过路径直接放行
		for _, path := range m.securityConfig.Auth.SkipPaths {
			if c.FullPath() == path || c.Request.URL.Path == path {
				c.Next()
				return
			}
		}

		// 提取参数
		clientIP := utils.GetClientIP(c)
		XRequestID := utils.GetRequestID(c)
		userAgent := c.GetHeader("User-Agent")

		// 从请求头中提取访问令牌
		accessToken, err := auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, model.APIResponse{
				Code:    http.StatusUnauthorized,
				Status:  "failed",
				Message: "missing or invalid authorization header",
				Error:   err.Error(),
			})
			c.Abort()
			return // 认证失败，直接返回
		}

		// 验证令牌 accessToken
		claims, err := m.jwtManager.ValidateAccessToken(accessToken)
		if err != nil {
			// 记录错误日志
			logger.LogError(err, XRequestID, 0, clientIP, "token_validation", c.Request.Method, map[string]interface{}{
				"operation":    "token_validation",
				"client_ip":    clientIP,
				"user_agent":   userAgent,
				"X-Request-ID": XRequestID,
				"timestamp":    logger.NowFormatted(),
			})
			c.JSON(http.StatusUnauthorized, model.APIResponse{
				Code:    http.StatusUnauthorized,
				Status:  "failed",
				Message: "invalid or expired token",
				Error:   err.Error(),
			})
			c.Abort()
			return
		}

		// 将用户信息添加到Gin上下文
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Set("merchant_id", claims.MerchantID)
		c.Set("claims", claims)

		// 继续处理请求
		c.Next()
	}
}

// =============================================================================
// 角色权限验证中间件
// =============================================================================

// GinRequireSuperAdmin 超级管理员角色校验中间件
// 仅superadmin可通过，用于跨商户的全局管理接口
// 使用方式: router.Use(middlewareManager.GinRequireSuperAdmin())
func (m *MiddlewareManager) GinRequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := utils.GetClaimsFromGinContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, model.APIResponse{
				Code:    http.StatusUnauthorized,
				Status:  "failed",
				Message: "user not authenticated",
			})
			c.Abort()
			return
		}

		if !claims.IsSuperAdmin() {
			c.JSON(http.StatusForbidden, model.APIResponse{
				Code:    http.StatusForbidden,
				Status:  "failed",
				Message: "superadmin role required",
			})
			c.Abort()
			return
		}

		// 继续处理请求
		c.Next()
	}
}
