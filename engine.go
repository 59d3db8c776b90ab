package rbacAuth

import (
	"log/slog"
	"time"

	"github.com/MrEthical07/rbacAuth/internal/rate"
	"github.com/MrEthical07/rbacAuth/jwt"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/password"
	"github.com/MrEthical07/rbacAuth/totp"
)

// Engine implements credential verification, the MFA and device
// confirmation challenges, session issuance, password recovery and the
// role gate. Methods are safe for concurrent use after Build.
type Engine struct {
	config     Config
	store      AccountStore
	hasher     *password.Multi
	dummyHash  string
	totp       *totp.Generator
	jwtManager *jwt.Manager
	notifier   Notifier
	notices    NoticeQueue
	dispatcher *notify.Dispatcher
	limiter    *rate.Limiter
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Close drains the built-in notice dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

// NoticesDropped reports best-effort notices dropped by the built-in
// dispatcher because its buffer was full.
func (e *Engine) NoticesDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	return nil
}
