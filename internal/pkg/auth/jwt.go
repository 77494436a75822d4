/**
 * 工具类:JWT工具
 * @author: sun977
 * @date: 2026.03.12
 * @description: JWT工具类 [本服务只消费运营平台签发的令牌，不提供登录签发接口]
 * @func:
 * 	1.创建JWT(测试与内部工具使用)
 * 	2.验证JWT
 * 	3.从请求头提取JWT
 */

package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5" // 引入jwt包
	"github.com/google/uuid"
)

// JWTClaims JWT声明结构
type JWTClaims struct {
	UserID     uint   `json:"id"`          // 运营平台用户ID
	Username   string `json:"username"`    // 用户名
	Role       string `json:"role"`        // 角色: superadmin, merchant_admin, operator
	MerchantID uint   `json:"merchant_id"` // 所属商户ID，superadmin为0
	jwt.RegisteredClaims
}

// RoleSuperAdmin 超级管理员角色，不受商户范围限制
const RoleSuperAdmin = "superadmin"

// IsSuperAdmin 判断是否为超级管理员
func (c *JWTClaims) IsSuperAdmin() bool {
	return c.Role == RoleSuperAdmin
}

// MerchantScope 返回商户数据范围，superadmin返回nil表示不限制
// 仓库层统一以uint64承载商户ID
func (c *JWTClaims) MerchantScope() *uint64 {
	if c.IsSuperAdmin() {
		return nil
	}
	merchantID := uint64(c.MerchantID)
	return &merchantID
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey      []byte
	issuer         string
	accessTokenTTL time.Duration
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey, issuer string, accessTokenTTL time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:      []byte(secretKey),
		issuer:         issuer,
		accessTokenTTL: accessTokenTTL,
	}
}

// GenerateAccessToken 生成访问令牌
// 生产环境令牌由运营平台签发，这里主要供测试和内部工具使用
func (j *JWTManager) GenerateAccessToken(userID uint, username, role string, merchantID uint) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:     userID,
		Username:   username,
		Role:       role,
		MerchantID: merchantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        generateJTI(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateAccessToken 验证访问令牌
func (j *JWTManager) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		// 检查令牌是否过期
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return nil, errors.New("token has expired")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ExtractTokenFromHeader 从Authorization请求头提取令牌
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}

// generateJTI 生成JWT唯一标识
func generateJTI() string {
	return uuid.NewString()
}
