package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"plexfront/internal/auth"
	"plexfront/services/diskcache"
)

// Re-export from auth package so handlers only depend on api
var (
	GetPlexToken = auth.GetPlexToken
	GetUserID    = auth.GetUserID
)

// TokenMiddleware creates middleware that requires a Plex token.
// Tokens can be provided via the X-Plex-Token header or ?token= query param.
// The user id is always derived from the token; client-supplied ids are
// ignored so one token can never address another user's data.
func TokenMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Always allow OPTIONS for CORS
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "plex token required"})
				return
			}

			ctx := auth.WithIdentity(r.Context(), token, diskcache.UserKey("plex", token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware admits only requests whose Plex token is one of tokens.
// It runs behind TokenMiddleware; an empty list admits nobody.
func AdminMiddleware(tokens []string) mux.MiddlewareFunc {
	allowed := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			allowed = append(allowed, []byte(t))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			token := []byte(GetPlexToken(r))
			for _, a := range allowed {
				if subtle.ConstantTimeCompare(token, a) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "admin access required"})
		})
	}
}

// extractToken extracts the Plex token from headers or query param.
// Priority: X-Plex-Token header > ?token= / ?X-Plex-Token= query param
func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Plex-Token")); token != "" {
		return token
	}

	// image URLs are loaded by <img> tags that cannot set headers
	query := r.URL.Query()
	if token := strings.TrimSpace(query.Get("token")); token != "" {
		return token
	}
	return strings.TrimSpace(query.Get("X-Plex-Token"))
}
