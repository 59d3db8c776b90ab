package rbacAuth_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/store/memory"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

var (
	tokenPattern = regexp.MustCompile(`[0-9a-f]{64}`)
	codePattern  = regexp.MustCompile(`code is (\d{6})`)
)

// Aligned to the start of a 30s step so window arithmetic is exact.
var testEpoch = time.Unix(56666667*30, 0).UTC()

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine *rbacAuth.Engine
	store  *memory.Store
	mail   *notify.Recorder
	clock  *testClock
}

func testConfig() rbacAuth.Config {
	cfg := rbacAuth.DefaultConfig()
	cfg.Session.Secret = "test-session-secret-0123456789abcdef"
	cfg.Password.BcryptCost = bcrypt.MinCost
	return cfg
}

func newHarness(t *testing.T, mutate func(*rbacAuth.Config), extra ...func(*rbacAuth.Builder)) *harness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &testClock{now: testEpoch}
	h := &harness{
		store: memory.New().WithClock(clock.Now),
		mail:  &notify.Recorder{},
		clock: clock,
	}

	b := rbacAuth.New().
		WithConfig(cfg).
		WithAccountStore(h.store).
		WithNotifier(h.mail).
		WithClock(clock.Now)
	for _, fn := range extra {
		fn(b)
	}

	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) createAccount(t *testing.T, email string, role rbacAuth.Role) *rbacAuth.Account {
	t.Helper()
	acct, err := h.engine.CreateAccount(context.Background(), rbacAuth.CreateAccountRequest{
		Email:    email,
		Password: testPassword,
		Role:     role,
	})
	require.NoError(t, err)
	return acct
}

func (h *harness) login(t *testing.T, ctx context.Context, email string) *rbacAuth.LoginResult {
	t.Helper()
	res, err := h.engine.Login(ctx, rbacAuth.LoginRequest{Email: email, Password: testPassword})
	require.NoError(t, err)
	return res
}

// tokenFrom returns the raw token embedded in the last message of kind.
func (h *harness) tokenFrom(t *testing.T, to string, kind notify.Kind) string {
	t.Helper()
	msg, ok := h.mail.LastOfKind(to, kind)
	require.True(t, ok, "no %s message for %s", kind, to)
	tok := tokenPattern.FindString(msg.Body)
	require.NotEmpty(t, tok, "message body carries no token: %q", msg.Body)
	return tok
}

func (h *harness) emailedCode(t *testing.T, to string) string {
	t.Helper()
	msg, ok := h.mail.LastOfKind(to, notify.KindOTP)
	require.True(t, ok, "no otp message for %s", to)
	m := codePattern.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2, "message body carries no code: %q", msg.Body)
	return m[1]
}

func (h *harness) stored(t *testing.T, id string) *rbacAuth.Account {
	t.Helper()
	acct, err := h.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return acct
}

// interleavedStore runs before once, ahead of the first conditional update.
type interleavedStore struct {
	*memory.Store
	once   sync.Once
	before func()
}

func (s *interleavedStore) UpdateWhere(ctx context.Context, f rbacAuth.AccountFilter, p rbacAuth.AccountPatch) (int64, error) {
	s.once.Do(s.before)
	return s.Store.UpdateWhere(ctx, f, p)
}
