package web

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// requestMetadata records the client address and User-Agent for the
// capabilities passed to import callbacks. RemoteAddr has already been
// resolved by TrustedRealIP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithIPAddress(r.Context(), clientIP(r))
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// capabilities collects what the callbacks of a run may know about the
// request that started it.
func capabilities(r *http.Request) core.Capabilities {
	return core.CapabilitiesFromContext(r.Context())
}

func logRequest(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
