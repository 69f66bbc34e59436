package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vendorlane/pulse/pkg/models"
)

// Middleware enforces JWT/API key auth for HTTP handlers. Browser websocket
// clients cannot set headers on the handshake, so a "token" query parameter
// is accepted as a bearer token equivalent.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil || !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			user, err := Authenticate(service, r)
			if err != nil {
				if logger != nil {
					logger.Warn("authentication failed", "path", r.URL.Path, "error", err)
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="pulse"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// Authenticate resolves the user for a request from its bearer token, API
// key header, or token query parameter.
func Authenticate(service *Service, r *http.Request) (*models.User, error) {
	if token := bearerToken(r); token != "" {
		return service.ValidateJWT(token)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return service.ValidateAPIKey(key)
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return service.ValidateJWT(token)
	}
	return nil, ErrInvalidToken
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
