// ABOUTME: HTTP middleware guarding the admin API
// ABOUTME: Accepts X-API-Key (bcrypt-checked) or an admin Bearer JWT

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeyHeader carries the shared admin key.
const APIKeyHeader = "X-API-Key"

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing credentials"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// AdminMiddleware admits requests with a valid API key or admin JWT. Either
// verifier may be nil to disable that method; with both nil every request
// is rejected.
func AdminMiddleware(keys *APIKeyVerifier, tokens TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get(APIKeyHeader); key != "" {
				if keys == nil || keys.Verify(key) != nil {
					logger.Warn("rejected admin api key", "remote", r.RemoteAddr, "path", r.URL.Path)
					unauthorized(w, "invalid api key")
					return
				}
				ctx := WithAuth(r.Context(), &AuthContext{Subject: "api-key", Method: MethodAPIKey})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				unauthorized(w, errMsg)
				return
			}
			if tokens == nil {
				unauthorized(w, "token auth disabled")
				return
			}
			subject, err := tokens.Verify(token)
			if err != nil {
				logger.Warn("rejected admin token", "remote", r.RemoteAddr, "error", err)
				unauthorized(w, "invalid token")
				return
			}

			ctx := WithAuth(r.Context(), &AuthContext{Subject: subject, Method: MethodJWT})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
