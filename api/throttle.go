package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig sets the per-IP token bucket for public routes.
type ThrottleConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
	// IdleTTL evicts buckets not used for this long.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipThrottle keeps one token bucket per client IP. Idle buckets are swept
// lazily on access.
type ipThrottle struct {
	mu        sync.Mutex
	cfg       ThrottleConfig
	buckets   map[string]*ipBucket
	lastSweep time.Time
	now       func() time.Time
}

func newIPThrottle(cfg ThrottleConfig) *ipThrottle {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &ipThrottle{
		cfg:     cfg,
		buckets: make(map[string]*ipBucket),
		now:     time.Now,
	}
}

func (t *ipThrottle) allow(ip string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > t.cfg.IdleTTL {
		for key, b := range t.buckets {
			if now.Sub(b.lastSeen) > t.cfg.IdleTTL {
				delete(t.buckets, key)
			}
		}
		t.lastSweep = now
	}

	b, ok := t.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(rate.Limit(t.cfg.RPS), t.cfg.Burst)}
		t.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (t *ipThrottle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
