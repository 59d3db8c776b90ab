package rbacAuth_test

import (
	"context"
	"testing"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccountDefaults(t *testing.T) {
	h := newHarness(t, nil)

	acct, err := h.engine.CreateAccount(context.Background(), rbacAuth.CreateAccountRequest{
		Email:    " Bob@Example.com ",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", acct.Email)
	assert.Equal(t, "bob", acct.DisplayName)
	assert.Equal(t, rbacAuth.RoleUser, acct.Role)
	assert.Equal(t, rbacAuth.StatusActive, acct.Status)
	assert.False(t, acct.MFAEnabled)
	assert.NotEqual(t, testPassword, acct.PasswordHash)
	assert.NotEmpty(t, acct.ID)
}

func TestCreateAccountValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "taken@example.com", rbacAuth.RoleUser)

	tests := []struct {
		name    string
		req     rbacAuth.CreateAccountRequest
		wantErr error
	}{
		{
			name:    "missing email",
			req:     rbacAuth.CreateAccountRequest{Password: testPassword},
			wantErr: rbacAuth.ErrValidation,
		},
		{
			name:    "malformed email",
			req:     rbacAuth.CreateAccountRequest{Email: "not an email", Password: testPassword},
			wantErr: rbacAuth.ErrValidation,
		},
		{
			name:    "display form rejected",
			req:     rbacAuth.CreateAccountRequest{Email: "Bob <bob@example.com>", Password: testPassword},
			wantErr: rbacAuth.ErrValidation,
		},
		{
			name:    "short password",
			req:     rbacAuth.CreateAccountRequest{Email: "bob@example.com", Password: "short"},
			wantErr: rbacAuth.ErrPasswordPolicy,
		},
		{
			name:    "unknown role",
			req:     rbacAuth.CreateAccountRequest{Email: "bob@example.com", Password: testPassword, Role: "owner"},
			wantErr: rbacAuth.ErrInvalidRole,
		},
		{
			name:    "duplicate email ignores case",
			req:     rbacAuth.CreateAccountRequest{Email: "TAKEN@example.com", Password: testPassword},
			wantErr: rbacAuth.ErrEmailTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateAccount(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateAccount(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "alice@example.com", rbacAuth.RoleUser)
	ctx := context.Background()

	name := "Alice Liddell"
	role := rbacAuth.RoleManager
	updated, err := h.engine.UpdateAccount(ctx, acct.ID, rbacAuth.UpdateAccountRequest{DisplayName: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, name, updated.DisplayName)
	assert.Equal(t, rbacAuth.RoleManager, updated.Role)
	assert.Equal(t, rbacAuth.RoleManager, h.stored(t, acct.ID).Role)

	blank := "  "
	_, err = h.engine.UpdateAccount(ctx, acct.ID, rbacAuth.UpdateAccountRequest{DisplayName: &blank})
	require.ErrorIs(t, err, rbacAuth.ErrValidation)

	bad := rbacAuth.Role("owner")
	_, err = h.engine.UpdateAccount(ctx, acct.ID, rbacAuth.UpdateAccountRequest{Role: &bad})
	require.ErrorIs(t, err, rbacAuth.ErrInvalidRole)

	_, err = h.engine.UpdateAccount(ctx, "missing", rbacAuth.UpdateAccountRequest{Role: &role})
	require.ErrorIs(t, err, rbacAuth.ErrNotFound)
}

func TestDeactivateKeepsAccount(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "alice@example.com", rbacAuth.RoleUser)

	require.NoError(t, h.engine.DeactivateAccount(context.Background(), acct.ID))

	stored := h.stored(t, acct.ID)
	assert.Equal(t, rbacAuth.StatusInactive, stored.Status)
	assert.Equal(t, 1, h.store.Len())

	require.ErrorIs(t, h.engine.DeactivateAccount(context.Background(), "missing"), rbacAuth.ErrNotFound)
}

func TestSeedSuperadminIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	req := rbacAuth.SeedRequest{Email: "root@example.com", DisplayName: "Root", Password: testPassword}
	ctx := context.Background()

	created, err := h.engine.SeedSuperadmin(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = h.engine.SeedSuperadmin(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, h.store.Len())

	acct, err := h.store.FindByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, rbacAuth.RoleSuperadmin, acct.Role)
	assert.Equal(t, "Root", acct.DisplayName)
}

func TestSeedSuperadminLeavesExistingAccountAlone(t *testing.T) {
	h := newHarness(t, nil)
	existing := h.createAccount(t, "root@example.com", rbacAuth.RoleUser)

	created, err := h.engine.SeedSuperadmin(context.Background(), rbacAuth.SeedRequest{
		Email:    "root@example.com",
		Password: "some-other-password",
	})
	require.NoError(t, err)
	assert.False(t, created)

	stored := h.stored(t, existing.ID)
	assert.Equal(t, rbacAuth.RoleUser, stored.Role)
	assert.Equal(t, existing.PasswordHash, stored.PasswordHash)
}

func TestSeedSuperadminValidatesInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.SeedSuperadmin(context.Background(), rbacAuth.SeedRequest{Email: "nope", Password: testPassword})
	require.ErrorIs(t, err, rbacAuth.ErrValidation)

	_, err = h.engine.SeedSuperadmin(context.Background(), rbacAuth.SeedRequest{Email: "root@example.com", Password: "short"})
	require.ErrorIs(t, err, rbacAuth.ErrPasswordPolicy)
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *rbacAuth.Engine

	_, err := e.Login(context.Background(), rbacAuth.LoginRequest{Email: "a@example.com", Password: testPassword})
	require.ErrorIs(t, err, rbacAuth.ErrEngineNotReady)
	_, err = e.Authorize(context.Background(), "token")
	require.ErrorIs(t, err, rbacAuth.ErrEngineNotReady)
	assert.Zero(t, e.NoticesDropped())
	assert.Empty(t, e.MetricsSnapshot().Counters)
	e.Close()
}

func TestMetricsCountEngineEvents(t *testing.T) {
	h := newHarness(t, nil, func(b *rbacAuth.Builder) {
		b.WithLatencyHistograms(true)
	})
	acct := h.createAccount(t, "alice@example.com", rbacAuth.RoleUser)
	ctx := context.Background()

	res := h.login(t, ctx, "alice@example.com")
	_, err := h.engine.Login(ctx, rbacAuth.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	require.Error(t, err)
	_, err = h.engine.Authorize(ctx, res.Token, rbacAuth.RoleSuperadmin)
	require.Error(t, err)
	_, err = h.engine.Authorize(ctx, res.Token)
	require.NoError(t, err)
	require.NoError(t, h.engine.DeactivateAccount(ctx, acct.ID))

	snap := h.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[rbacAuth.MetricAccountCreated])
	assert.Equal(t, uint64(1), snap.Counters[rbacAuth.MetricLoginSuccess])
	assert.Equal(t, uint64(1), snap.Counters[rbacAuth.MetricLoginFailure])
	assert.Equal(t, uint64(1), snap.Counters[rbacAuth.MetricAuthorizeForbidden])
	assert.Equal(t, uint64(1), snap.Counters[rbacAuth.MetricAuthorizeSuccess])
	assert.Equal(t, uint64(1), snap.Counters[rbacAuth.MetricAccountDeactivated])

	var observed uint64
	for _, n := range snap.Histograms[rbacAuth.MetricLoginLatency] {
		observed += n
	}
	assert.Equal(t, uint64(2), observed)
}

func TestSecurityReportFlagsDevelopmentSettings(t *testing.T) {
	h := newHarness(t, nil)
	r := h.engine.SecurityReport()

	assert.False(t, r.ProductionMode)
	assert.False(t, r.LockoutActive)
	assert.Equal(t, "bcrypt", r.PasswordAlgorithm)
	assert.Contains(t, r.Warnings, "failed-login lockout is disabled")
	assert.Contains(t, r.Warnings, "session cookie is sent without the Secure flag")
}
