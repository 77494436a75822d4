package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func TestGenerateAndValidateAccessToken(t *testing.T) {
	manager := NewJWTManager(testSecret, "vend-platform-test", time.Hour)

	token, err := manager.GenerateAccessToken(42, "alice", "merchant_admin", 7)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "merchant_admin", claims.Role)
	assert.Equal(t, uint(7), claims.MerchantID)
	assert.Equal(t, "vend-platform-test", claims.Issuer)
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager(testSecret, "vend-platform-test", time.Hour)
	other := NewJWTManager("another-secret-also-32-characters!!!", "vend-platform-test", time.Hour)

	token, err := manager.GenerateAccessToken(1, "alice", "operator", 1)
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessTokenExpired(t *testing.T) {
	manager := NewJWTManager(testSecret, "vend-platform-test", -time.Minute)

	token, err := manager.GenerateAccessToken(1, "alice", "operator", 1)
	require.NoError(t, err)

	_, err = manager.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessTokenGarbage(t *testing.T) {
	manager := NewJWTManager(testSecret, "vend-platform-test", time.Hour)

	_, err := manager.ValidateAccessToken("not-a-jwt")
	assert.Error(t, err)
}

func TestMerchantScope(t *testing.T) {
	super := &JWTClaims{Role: RoleSuperAdmin, MerchantID: 0}
	assert.True(t, super.IsSuperAdmin())
	assert.Nil(t, super.MerchantScope(), "superadmin不受商户范围限制")

	merchant := &JWTClaims{Role: "merchant_admin", MerchantID: 7}
	assert.False(t, merchant.IsSuperAdmin())
	scope := merchant.MerchantScope()
	require.NotNil(t, scope)
	assert.Equal(t, uint64(7), *scope)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid_bearer", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lowercase_bearer", "bearer abc.def.ghi", "abc.def.ghi", false},
		{"empty", "", "", true},
		{"missing_scheme", "abc.def.ghi", "", true},
		{"wrong_scheme", "Basic abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
