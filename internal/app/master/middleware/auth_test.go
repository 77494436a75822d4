package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendmaster/internal/config"
	"vendmaster/internal/pkg/auth"
)

const testSecret = "test-secret-at-least-32-characters!!"

// newTestManager 构建带认证配置的中间件管理器
func newTestManager(skipPaths []string) (*MiddlewareManager, *auth.JWTManager) {
	jwtManager := auth.NewJWTManager(testSecret, "vend-platform-test", time.Hour)
	secCfg := &config.SecurityConfig{
		Auth: config.AuthConfig{SkipPaths: skipPaths},
	}
	return NewMiddlewareManager(jwtManager, secCfg), jwtManager
}

// newAuthTestRouter JWT认证中间件 + 回显当前用户名的探活路由
func newAuthTestRouter(m *MiddlewareManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(m.GinJWTAuthMiddleware())
	engine.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})
	engine.GET("/open/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
	return engine
}

func TestJWTAuthMiddleware(t *testing.T) {
	m, jwtManager := newTestManager(nil)
	engine := newAuthTestRouter(m)

	// 无令牌拒绝
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 有效令牌放行并注入上下文
	token, err := jwtManager.GenerateAccessToken(1, "alice", "operator", 7)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestJWTAuthMiddlewareSkipPaths(t *testing.T) {
	m, _ := newTestManager([]string{"/open/ping"})
	engine := newAuthTestRouter(m)

	// 配置的跳过路径无令牌也放行
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open/ping", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// 其他路径仍要求令牌
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSuperAdmin(t *testing.T) {
	m, jwtManager := newTestManager(nil)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(m.GinJWTAuthMiddleware())
	engine.GET("/audit", m.GinRequireSuperAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// 普通角色拒绝
	token, err := jwtManager.GenerateAccessToken(1, "bob", "merchant_admin", 7)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 超级管理员放行
	token, err = jwtManager.GenerateAccessToken(2, "root", auth.RoleSuperAdmin, 0)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
