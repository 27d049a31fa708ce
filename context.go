package goSession

import "context"

type requestMetaKey int

const (
	clientIPKey requestMetaKey = iota
	userAgentKey
)

// WithClientIP attaches the caller's IP address to ctx. The Manager records
// it on audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. The Manager
// records it as audit metadata on session creation.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	return requestMeta(ctx, clientIPKey)
}

func userAgentFromContext(ctx context.Context) string {
	return requestMeta(ctx, userAgentKey)
}

func requestMeta(ctx context.Context, key requestMetaKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
