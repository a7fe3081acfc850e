package core

import "context"

type contextKey string

const (
	ctxKeyIdentity  contextKey = "import_identity"
	ctxKeyIPAddress contextKey = "import_ip"
	ctxKeyUserAgent contextKey = "import_ua"
)

// ContextWithIdentity records the authenticated caller for capability injection.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, identity)
}

// ContextWithIPAddress adds the caller's IP address to ctx.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the caller's User-Agent to ctx.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// GetIdentityFromContext extracts the caller identity from ctx.
func GetIdentityFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIdentity).(string); ok {
		return v
	}
	return ""
}

// GetIPAddressFromContext extracts the IP address from ctx.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts the User-Agent from ctx.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// CapabilitiesFromContext collects the request metadata stored in ctx.
// Transports call it once and pass the result to Service.Run explicitly;
// callbacks never read ctx values themselves.
func CapabilitiesFromContext(ctx context.Context) Capabilities {
	return Capabilities{
		Identity:   GetIdentityFromContext(ctx),
		RemoteAddr: GetIPAddressFromContext(ctx),
		UserAgent:  GetUserAgentFromContext(ctx),
	}
}
