package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited means a failed-login budget for the window is spent.
	ErrRateLimited = errors.New("too many failed logins")
	// ErrRedisUnavailable wraps any Redis command failure. Callers fail open.
	ErrRedisUnavailable = errors.New("limiter redis unavailable")
)

// incrWindow bumps a counter and starts its window on the first hit, in one
// round trip so a crash between the two commands cannot leave a key
// without a TTL.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle bool
	MaxAttempts      int
	Window           time.Duration
	KeyPrefix        string
}

// Limiter counts failed logins per email and, optionally, per client IP.
type Limiter struct {
	rdb    redis.UniversalClient
	max    int64
	window time.Duration
	byIP   bool
	prefix string
}

// New creates a [Limiter] backed by the given Redis client.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "rbacauth"
	}
	return &Limiter{
		rdb:    rdb,
		max:    int64(cfg.MaxAttempts),
		window: cfg.Window,
		byIP:   cfg.EnableIPThrottle,
		prefix: prefix + ":login:",
	}
}

// keys returns the counters that apply to one attempt, email first.
func (l *Limiter) keys(email, ip string) []string {
	keys := []string{l.prefix + "email:" + normalizeEmail(email)}
	if l.byIP && ip != "" {
		keys = append(keys, l.prefix+"ip:"+ip)
	}
	return keys
}

// Check returns ErrRateLimited once any applicable counter has reached
// MaxAttempts.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	vals, err := l.rdb.MGet(ctx, l.keys(email, ip)...).Result()
	if err != nil {
		return unavailable(err)
	}
	for _, v := range vals {
		if n := parseCount(v); n >= l.max {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordFailure increments every applicable counter. It returns
// ErrRateLimited when this failure exhausted a budget.
func (l *Limiter) RecordFailure(ctx context.Context, email, ip string) error {
	limited := false
	for _, key := range l.keys(email, ip) {
		n, err := incrWindow.Run(ctx, l.rdb, []string{key}, l.window.Milliseconds()).Int64()
		if err != nil {
			return unavailable(err)
		}
		if n >= l.max {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the per-email counter. The IP counter stays so one valid
// login cannot launder failures spread across many accounts.
func (l *Limiter) Reset(ctx context.Context, email string) error {
	if err := l.rdb.Del(ctx, l.keys(email, "")[0]).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Attempts returns the current failure count for email.
func (l *Limiter) Attempts(ctx context.Context, email string) (int, error) {
	v, err := l.rdb.Get(ctx, l.keys(email, "")[0]).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable(err)
	}
	return int(parseCount(v)), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseCount reads an MGET/GET value; missing or garbled counters are zero.
func parseCount(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}
