package rbacAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/rbacAuth/internal/rate"
	"github.com/MrEthical07/rbacAuth/jwt"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/password"
	"github.com/MrEthical07/rbacAuth/totp"
	"github.com/redis/go-redis/v9"
)

// Notifier sends required account emails.
type Notifier = notify.Notifier

// NoticeQueue accepts best-effort notices. Enqueue must not block on
// delivery. *notify.Dispatcher and *notify.RedisQueue implement it.
type NoticeQueue interface {
	Enqueue(ctx context.Context, msg notify.Message)
}

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config   Config
	store    AccountStore
	notifier Notifier
	notices  NoticeQueue
	redis    redis.UniversalClient
	logger   *slog.Logger
	now      func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the transport for OTP, confirmation and reset emails.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithNoticeQueue replaces the in-process dispatcher used for best-effort
// notices.
func (b *Builder) WithNoticeQueue(q NoticeQueue) *Builder {
	b.notices = q
	return b
}

// WithRedis provides the client used by the failed-login limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token expiry and TOTP steps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}
	if cfg.Lockout.Enabled && b.redis == nil {
		return nil, errors.New("Lockout requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- PASSWORD --------
	hasher, err := buildHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash("rbacauth-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("password hasher self-test: %w", err)
	}

	// -------- TOTP --------
	gen, err := totp.New(totp.Config{
		Issuer: cfg.TOTP.Issuer,
		Period: cfg.TOTP.Period,
		Digits: cfg.TOTP.Digits,
		Window: cfg.TOTP.Window,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION TOKENS --------
	jwtCfg := jwt.Config{
		TTL:           cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		KeyID:         cfg.Session.KeyID,
		Now:           now,
	}
	if jwtCfg.SigningMethod == jwt.MethodHS256 {
		jwtCfg.PrivateKey = []byte(cfg.Session.Secret)
	} else {
		jwtCfg.PrivateKey = []byte(cfg.Session.PrivateKeyPEM)
		jwtCfg.PublicKey = []byte(cfg.Session.PublicKeyPEM)
	}
	jwtManager, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:     cfg,
		store:      b.store,
		hasher:     hasher,
		dummyHash:  dummy,
		totp:       gen,
		jwtManager: jwtManager,
		notifier:   b.notifier,
		notices:    b.notices,
		metrics:    NewMetrics(cfg.Metrics),
		logger:     logger,
		now:        now,
	}

	// -------- NOTICES --------
	if e.notices == nil {
		d := notify.NewDispatcher(notify.DispatcherConfig{
			BufferSize:  cfg.Notify.BufferSize,
			DropIfFull:  cfg.Notify.DropIfFull,
			EnqueueWait: cfg.Notify.EnqueueWait,
			Workers:     cfg.Notify.Workers,
			Retry:       cfg.Notify.Retry,
			SendTimeout: cfg.Notify.SendTimeout,
		}, b.notifier, logger)
		e.dispatcher = d
		e.notices = d
	}

	// -------- LOCKOUT --------
	if cfg.Lockout.Enabled {
		e.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.Lockout.EnableIPThrottle,
			MaxAttempts:      cfg.Lockout.MaxAttempts,
			Window:           cfg.Lockout.Window,
		})
	}

	b.built = true
	return e, nil
}

func buildHasher(cfg PasswordConfig) (*password.Multi, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	m := &password.Multi{Bcrypt: bc, Primary: bc}
	if cfg.Argon2 == (password.Argon2Config{}) && password.Algorithm(cfg.Algorithm) != password.AlgorithmArgon2 {
		return m, nil
	}
	ar, err := password.NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	m.Argon2 = ar
	if password.Algorithm(cfg.Algorithm) == password.AlgorithmArgon2 {
		m.Primary = ar
	}
	return m, nil
}
