package rbacAuth

import "context"

type requestKey int

const (
	clientIPKey requestKey = iota
	userAgentKey
)

// WithClientIP records the caller's address. Login uses it as the web
// fingerprint and as the per-IP limiter key.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithUserAgent records the caller's User-Agent for device log lines.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIPFromContext returns the address set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	return requestValue(ctx, clientIPKey)
}

func userAgentFromContext(ctx context.Context) string {
	return requestValue(ctx, userAgentKey)
}

func requestValue(ctx context.Context, key requestKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
