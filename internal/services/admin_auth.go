package services

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AdminAuthService authenticates the human admin surface. Credentials come
// from configuration (argon2id hash), not the user table.
type AdminAuthService struct {
	validator *ValidationHelper
}

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func NewAdminAuthService() *AdminAuthService {
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("admin.jwt_expiry_minutes", 60)

	return &AdminAuthService{validator: NewValidationHelper()}
}

// Login authenticates an admin
// @Summary Admin login
// @Description Verify admin credentials and issue a short-lived admin token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body adminLoginRequest true "Admin credentials"
// @Success 200 {object} object{token=string}
// @Failure 401 {object} ErrorResponse
// @Router /admin/login [post]
func (s *AdminAuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[ADMIN] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req adminLoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	configuredEmail := strings.ToLower(viper.GetString("admin.email"))
	configuredHash := viper.GetString("admin.password_hash")
	if configuredEmail == "" || configuredHash == "" {
		log.Printf("[ADMIN] Rejecting login: admin credentials not configured")
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if strings.ToLower(req.Email) != configuredEmail || !verifyPassword(req.Password, configuredHash) {
		log.Printf("[ADMIN] Invalid credentials for %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateAdminJWT()
	if err != nil {
		log.Printf("[ADMIN] JWT generation failed: %v", err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ADMIN] Login successful for %s", req.Email)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func generateAdminJWT() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 0,
		"role":    "admin",
		"exp":     time.Now().Add(time.Duration(viper.GetInt("admin.jwt_expiry_minutes")) * time.Minute).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

// HashPassword produces the salt$hash form stored in configuration.
func HashPassword(password string, salt []byte) string {
	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash))
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
