package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestHashPassword(t *testing.T) {
	service := NewAdminAuthService()
	assert.NotNil(t, service)

	salt := []byte("0123456789abcdef")
	hashed := HashPassword("correct-horse", salt)

	assert.True(t, verifyPassword("correct-horse", hashed))
	assert.False(t, verifyPassword("wrong-horse", hashed))
	assert.False(t, verifyPassword("correct-horse", "not$valid$format"))
	assert.False(t, verifyPassword("correct-horse", "missing-separator"))
}

func TestAdminAuthService_Login(t *testing.T) {
	service := NewAdminAuthService()

	viper.Set("admin.email", "admin@shareco2.example.com")
	viper.Set("admin.password_hash", HashPassword("sup3rsecret", []byte("0123456789abcdef")))
	viper.Set("jwt.secret_key", "test-signing-key")
	t.Cleanup(func() {
		viper.Set("admin.email", "")
		viper.Set("admin.password_hash", "")
		viper.Set("jwt.secret_key", "")
	})

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		service.Login(rec, req)
		return rec
	}

	t.Run("valid credentials issue an admin token", func(t *testing.T) {
		rec := login(`{"email":"admin@shareco2.example.com","password":"sup3rsecret"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["token"])

		token, err := jwt.Parse(resp["token"], func(token *jwt.Token) (interface{}, error) {
			return []byte("test-signing-key"), nil
		})
		assert.NoError(t, err)
		claims, ok := token.Claims.(jwt.MapClaims)
		assert.True(t, ok)
		assert.Equal(t, "admin", claims["role"])
	})

	t.Run("email comparison is case insensitive", func(t *testing.T) {
		rec := login(`{"email":"Admin@ShareCO2.example.com","password":"sup3rsecret"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		rec := login(`{"email":"admin@shareco2.example.com","password":"guessing1"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email is unauthorized", func(t *testing.T) {
		rec := login(`{"email":"intruder@shareco2.example.com","password":"sup3rsecret"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		rec := login(`{"email":"admin@shareco2.example.com"`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdminAuthService_LoginUnconfigured(t *testing.T) {
	service := NewAdminAuthService()

	viper.Set("admin.email", "")
	viper.Set("admin.password_hash", "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login",
		bytes.NewBufferString(`{"email":"admin@shareco2.example.com","password":"sup3rsecret"}`))
	rec := httptest.NewRecorder()
	service.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
