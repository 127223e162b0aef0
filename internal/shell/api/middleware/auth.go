// Package middleware provides HTTP middleware for the docklite API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the token middleware.
type AuthConfig struct {
	// Token is the shared API token. Empty disables authentication.
	Token string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Token Middleware
// =============================================================================

// AuthMiddleware requires `Authorization: Bearer <token>` on every request it
// wraps.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Enabled reports whether a token is configured.
func (m *AuthMiddleware) Enabled() bool {
	return m.config.Token != ""
}

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "authentication required", "unauthorized")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.config.Token)) != 1 {
			m.config.Logger.Warn("invalid API token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
				"method", r.Method,
			)
			writeJSONError(w, http.StatusForbidden, "invalid API token", "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// =============================================================================
// JSON Error Response
// =============================================================================

// errorResponse mirrors the API's error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
