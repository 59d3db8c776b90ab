// Command rbacauth-loadtest measures Authorize and Login throughput against
// an in-memory account store, with the Redis failed-login limiter enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const password = "loadtest-password"

type options struct {
	accounts    int
	concurrency int
	authorize   int
	login       int
	bcryptCost  int
	redisAddr   string
}

type principal struct {
	email string
	token string
}

func main() {
	var o options
	flag.IntVar(&o.accounts, "accounts", 1000, "accounts to seed")
	flag.IntVar(&o.concurrency, "concurrency", 64, "concurrent workers")
	flag.IntVar(&o.authorize, "authorize-ops", 200000, "Authorize calls to issue")
	flag.IntVar(&o.login, "login-ops", 2000, "Login calls to issue")
	flag.IntVar(&o.bcryptCost, "bcrypt-cost", 10, "bcrypt cost for seeded passwords")
	flag.StringVar(&o.redisAddr, "redis-addr", "", "redis address (default $REDIS_ADDR, else in-process miniredis)")
	flag.Parse()

	if o.accounts <= 0 || o.concurrency <= 0 || o.authorize <= 0 || o.login <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and op counts must be positive")
		os.Exit(2)
	}
	if err := run(context.Background(), o); err != nil {
		fmt.Fprintln(os.Stderr, "loadtest:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	rdb, closeRedis, err := openRedis(o.redisAddr)
	if err != nil {
		return err
	}
	defer closeRedis()

	cfg := rbacAuth.DefaultConfig()
	cfg.Session.Secret = "loadtest-session-secret-0123456789abcdef"
	cfg.Password.BcryptCost = o.bcryptCost
	cfg.Device.Enabled = false
	cfg.Lockout.Enabled = true
	cfg.Lockout.MaxAttempts = 1 << 20
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := rbacAuth.New().
		WithConfig(cfg).
		WithAccountStore(memory.New()).
		WithNotifier(notify.NotifierFunc(func(context.Context, notify.Message) error { return nil })).
		WithRedis(rdb).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	began := time.Now()
	users, err := seed(ctx, engine, o.accounts)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d accounts in %s\n", len(users), time.Since(began).Round(time.Millisecond))

	results := []result{
		measure("authorize", o.authorize, o.concurrency, func(r *rand.Rand) error {
			_, err := engine.Authorize(ctx, users[r.IntN(len(users))].token)
			return err
		}),
		measure("login", o.login, o.concurrency, func(r *rand.Rand) error {
			p := users[r.IntN(len(users))]
			_, err := engine.Login(ctx, rbacAuth.LoginRequest{Email: p.email, Password: password})
			return err
		}),
	}
	for _, r := range results {
		fmt.Println(r)
	}

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: sessions=%d authorize_ok=%d login_ok=%d\n",
		snap.Counters[rbacAuth.MetricSessionIssued],
		snap.Counters[rbacAuth.MetricAuthorizeSuccess],
		snap.Counters[rbacAuth.MetricLoginSuccess])
	return nil
}

func seed(ctx context.Context, engine *rbacAuth.Engine, n int) ([]principal, error) {
	users := make([]principal, n)
	for i := range users {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		acct, err := engine.CreateAccount(ctx, rbacAuth.CreateAccountRequest{
			Email:    email,
			Password: password,
			Role:     rbacAuth.Roles[i%len(rbacAuth.Roles)],
		})
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", email, err)
		}
		token, _, err := engine.IssueSession(acct)
		if err != nil {
			return nil, fmt.Errorf("session for %s: %w", email, err)
		}
		users[i] = principal{email: email, token: token}
	}
	return users, nil
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		if mr, err = miniredis.Run(); err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		fmt.Println("redis: in-process miniredis at", addr)
	} else {
		fmt.Println("redis:", addr)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	return rdb, func() {
		_ = rdb.Close()
		if mr != nil {
			mr.Close()
		}
	}, nil
}

type result struct {
	name     string
	elapsed  time.Duration
	samples  []time.Duration
	failures int
}

// measure runs op ops times spread over workers. Each worker keeps its own
// samples; they are merged once all workers finish.
func measure(name string, ops, workers int, op func(*rand.Rand) error) result {
	jobs := make(chan struct{}, workers)
	perWorker := make([]result, workers)

	var wg sync.WaitGroup
	start := time.Now()
	for w := range perWorker {
		wg.Add(1)
		go func(own *result, seed uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, uint64(time.Now().UnixNano())))
			for range jobs {
				t0 := time.Now()
				if err := op(r); err != nil {
					own.failures++
				}
				own.samples = append(own.samples, time.Since(t0))
			}
		}(&perWorker[w], uint64(w))
	}
	for range ops {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	out := result{name: name, elapsed: time.Since(start), samples: make([]time.Duration, 0, ops)}
	for _, w := range perWorker {
		out.samples = append(out.samples, w.samples...)
		out.failures += w.failures
	}
	slices.Sort(out.samples)
	return out
}

// quantile returns the nearest-rank sample at q in [0, 1].
func (r result) quantile(q float64) time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	i := int(q * float64(len(r.samples)-1))
	return r.samples[min(max(i, 0), len(r.samples)-1)]
}

func (r result) String() string {
	rate := 0.0
	if r.elapsed > 0 {
		rate = float64(len(r.samples)) / r.elapsed.Seconds()
	}
	return fmt.Sprintf("%-9s ops=%d failures=%d elapsed=%s rate=%.0f/s p50=%s p95=%s p99=%s",
		r.name, len(r.samples), r.failures, r.elapsed.Round(time.Millisecond), rate,
		r.quantile(0.50).Round(time.Microsecond),
		r.quantile(0.95).Round(time.Microsecond),
		r.quantile(0.99).Round(time.Microsecond))
}
