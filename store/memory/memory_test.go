package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, email string) *rbacAuth.Account {
	t.Helper()
	acct, err := s.Create(context.Background(), rbacAuth.NewAccount{
		Email:        email,
		DisplayName:  "Test",
		Role:         rbacAuth.RoleUser,
		PasswordHash: "$2a$12$placeholder",
	})
	require.NoError(t, err)
	return acct
}

func TestCreateAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()

	created := seed(t, s, "Alice@Example.com")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, rbacAuth.StatusActive, created.Status)

	byEmail, err := s.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)
	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	s := New()
	seed(t, s, "dup@example.com")

	_, err := s.Create(context.Background(), rbacAuth.NewAccount{Email: "DUP@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, rbacAuth.ErrEmailTaken)
	assert.Equal(t, 1, s.Len())
}

func TestReturnedAccountsAreCopies(t *testing.T) {
	s := New()
	acct := seed(t, s, "copy@example.com")

	acct.Role = rbacAuth.RoleSuperadmin
	stored, err := s.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, rbacAuth.RoleUser, stored.Role)
}

func TestFindByTokenHonoursExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := seed(t, s, "token@example.com")
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Update(ctx, acct.ID, rbacAuth.AccountPatch{
		Recovery: &rbacAuth.PendingToken{Hash: "abc", ExpiresAt: now.Add(time.Hour)},
	}))

	found, err := s.FindByToken(ctx, rbacAuth.TokenRecovery, "abc", now)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, found.ID)

	_, err = s.FindByToken(ctx, rbacAuth.TokenRecovery, "abc", now.Add(time.Hour))
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)

	_, err = s.FindByToken(ctx, rbacAuth.TokenConfirmation, "abc", now)
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)

	_, err = s.FindByToken(ctx, rbacAuth.TokenRecovery, "", now)
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)
}

func TestUpdateWhereConsumesOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := seed(t, s, "race@example.com")
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Update(ctx, acct.ID, rbacAuth.AccountPatch{
		Recovery: &rbacAuth.PendingToken{Hash: "once", ExpiresAt: now.Add(time.Hour)},
	}))

	filter := rbacAuth.AccountFilter{ID: acct.ID, Field: rbacAuth.TokenRecovery, Hash: "once", ValidAt: now}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.UpdateWhere(ctx, filter, rbacAuth.AccountPatch{ClearRecovery: true})
			if err == nil {
				wins.Add(n)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	stored, err := s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Recovery)
}

func TestUpdateWhereOTPStep(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := seed(t, s, "otp@example.com")

	step := int64(100)
	n, err := s.UpdateWhere(ctx, rbacAuth.AccountFilter{ID: acct.ID, OTPStepBelow: step}, rbacAuth.AccountPatch{LastOTPStep: &step})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.UpdateWhere(ctx, rbacAuth.AccountFilter{ID: acct.ID, OTPStepBelow: step}, rbacAuth.AccountPatch{LastOTPStep: &step})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpdateMissingAccount(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "missing", rbacAuth.AccountPatch{})
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)

	n, err := s.UpdateWhere(context.Background(), rbacAuth.AccountFilter{ID: "missing"}, rbacAuth.AccountPatch{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMFAPatchKeepsSecretAndFlagTogether(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := seed(t, s, "mfa@example.com")

	require.NoError(t, s.Update(ctx, acct.ID, rbacAuth.AccountPatch{MFA: &rbacAuth.MFAState{Enabled: true, Secret: "JBSWY3DPEHPK3PXP"}}))
	stored, _ := s.FindByID(ctx, acct.ID)
	assert.True(t, stored.MFAEnabled)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", stored.MFASecret)

	require.NoError(t, s.Update(ctx, acct.ID, rbacAuth.AccountPatch{MFA: &rbacAuth.MFAState{Enabled: false, Secret: "ignored"}}))
	stored, _ = s.FindByID(ctx, acct.ID)
	assert.False(t, stored.MFAEnabled)
	assert.Empty(t, stored.MFASecret)
}

func TestListOrdersByCreation(t *testing.T) {
	tick := time.Unix(1_700_000_000, 0)
	s := New().WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})
	seed(t, s, "zed@example.com")
	seed(t, s, "amy@example.com")

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "zed@example.com", list[0].Email)
	assert.Equal(t, "amy@example.com", list[1].Email)

	list[0].Role = rbacAuth.RoleSuperadmin
	stored, err := s.FindByEmail(context.Background(), "zed@example.com")
	require.NoError(t, err)
	assert.Equal(t, rbacAuth.RoleUser, stored.Role)
}

func TestUpdateWhereDeviceAndStatusPreconditions(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := seed(t, s, "devices@example.com")
	web := rbacAuth.Device{Channel: rbacAuth.ChannelWeb, Value: "203.0.113.1", LastSeen: time.Unix(1_700_000_000, 0)}

	n, err := s.UpdateWhere(ctx,
		rbacAuth.AccountFilter{ID: acct.ID, SameDevices: true, Devices: nil},
		rbacAuth.AccountPatch{Devices: []rbacAuth.Device{web}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The same stale read no longer matches.
	n, err = s.UpdateWhere(ctx,
		rbacAuth.AccountFilter{ID: acct.ID, SameDevices: true, Devices: nil},
		rbacAuth.AccountPatch{Devices: []rbacAuth.Device{}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.UpdateWhere(ctx,
		rbacAuth.AccountFilter{ID: acct.ID, Status: rbacAuth.StatusInactive},
		rbacAuth.AccountPatch{ClearOTP: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	stored, err := s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Devices, 1)
}
