package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/spf13/viper"
)

// PartnerAuth authenticates the partner order system by its static bearer
// secret. Hashes are compared in constant time.
func PartnerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := viper.GetString("partner.secret")
		if secret == "" {
			log.Printf("[PARTNER] Rejecting request: partner secret not configured")
			http.Error(w, "Partner API unavailable", http.StatusServiceUnavailable)
			return
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		expected := sha256.Sum256([]byte(secret))
		got := sha256.Sum256([]byte(parts[1]))
		if subtle.ConstantTimeCompare(expected[:], got[:]) != 1 {
			log.Printf("[PARTNER] Invalid bearer secret from IP: %s", r.RemoteAddr)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
