package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// Identity resolves who is calling and stores it with core.ContextWithIdentity.
//
// With RequireAPIKey the X-API-Key header must match one of the configured
// identity:key pairs and the pair's identity is used. Otherwise the
// identity is read from cfg.IdentityHeader, as set by a trusted proxy, and
// requests without it stay anonymous.
func Identity(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys := cfg.APIKeyIdentities()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				if cfg.IdentityHeader != "" {
					if id := strings.TrimSpace(r.Header.Get(cfg.IdentityHeader)); id != "" {
						r = r.WithContext(core.ContextWithIdentity(r.Context(), id))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				logging.FromContext(r.Context()).Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				deny(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			identity, ok := lookupAPIKey(apiKey, keys)
			if !ok {
				logging.FromContext(r.Context()).Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				deny(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r.WithContext(core.ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// lookupAPIKey compares key against every configured key in constant time
// and returns the identity of the match.
func lookupAPIKey(key string, keys map[string]string) (string, bool) {
	var identity string
	found := 0
	for k, id := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
			identity = id
			found = 1
		}
	}
	return identity, found == 1
}

func deny(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
