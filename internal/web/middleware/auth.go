package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JonMunkholm/groupsub/internal/config"
	"github.com/JonMunkholm/groupsub/internal/core"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAdmin           = errors.New("not an administrator")
)

// AdminRole is the role claim a bearer token must carry.
const AdminRole = "admin"

// AdminClaims are the claims of an admin bearer token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth returns middleware that admits a request carrying either a configured
// X-API-Key or an HS256 bearer token with the admin role. The authenticated
// actor is stored in the request metadata for the audit log.
//
// If RequireAuth is false, all requests pass through.
func Auth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := authenticate(r, cfg.APIKeys, secret)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, ErrNotAdmin) {
					status = http.StatusForbidden
				}
				slog.Warn("auth: request rejected",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				writeError(w, status, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(core.WithActor(r.Context(), actor)))
		})
	}
}

func authenticate(r *http.Request, keys []string, secret []byte) (string, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		idx := matchAPIKey(apiKey, keys)
		if idx < 0 {
			return "", ErrInvalidCredentials
		}
		return fmt.Sprintf("api-key-%d", idx+1), nil
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMissingCredentials
	}
	if len(secret) == 0 {
		return "", ErrInvalidCredentials
	}
	return verifyToken(strings.TrimSpace(token), secret)
}

// verifyToken checks signature, expiry and role, returning the subject.
func verifyToken(token string, secret []byte) (string, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Role != AdminRole {
		return "", ErrNotAdmin
	}
	if claims.Subject == "" {
		return "token", nil
	}
	return claims.Subject, nil
}

// matchAPIKey returns the index of the matching key or -1.
// Every key is compared in constant time so timing does not reveal which
// key (if any) matched.
func matchAPIKey(key string, validKeys []string) int {
	match := -1
	for i, validKey := range validKeys {
		eq := subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
		match = subtle.ConstantTimeSelect(eq, i, match)
	}
	return match
}

// writeError writes the mapped user message as JSON.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := core.MapError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   msg.Message,
		"message": msg.Message,
		"action":  msg.Action,
		"code":    msg.Code,
	})
}
