package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	s, err := New(db, DialectPostgres)
	require.NoError(t, err)
	return s.WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }), mock, db
}

var columnNames = []string{
	"id", "email", "display_name", "role", "password_hash", "status",
	"mfa_enabled", "mfa_secret", "last_otp_step", "devices",
	"otp_hash", "otp_expires_at", "recovery_hash", "recovery_expires_at",
	"confirm_hash", "confirm_expires_at", "confirm_channel", "confirm_value",
	"created_at", "updated_at",
}

func TestRebindNumbersPlaceholders(t *testing.T) {
	pg, _ := lookupDialect(DialectPostgres)
	lite, _ := lookupDialect(DialectSQLite)

	q := "UPDATE accounts SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, "UPDATE accounts SET a = $1, b = $2 WHERE id = $3", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestUnknownDialect(t *testing.T) {
	_, err := New(nil, Dialect("oracle"))
	assert.Error(t, err)
}

func TestPostgresFindByEmail(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(columnNames).AddRow(
		"a-1", "ann@example.com", "Ann", "superadmin", "$2a$12$hash", "active",
		true, "JBSWY3DPEHPK3PXP", int64(10), `[{"channel":"web","value":"10.0.0.1","lastSeen":1700000000000}]`,
		nil, nil, "rec", int64(1_700_000_360_000),
		nil, nil, nil, nil,
		int64(1_600_000_000_000), int64(1_700_000_000_000),
	)
	mock.ExpectQuery(`(?s)^SELECT .* FROM accounts WHERE email = \$1$`).
		WithArgs("ann@example.com").
		WillReturnRows(rows)

	acct, err := s.FindByEmail(context.Background(), " Ann@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "a-1", acct.ID)
	assert.Equal(t, rbacAuth.RoleSuperadmin, acct.Role)
	assert.True(t, acct.MFAEnabled)
	assert.Equal(t, int64(10), acct.LastOTPStep)
	require.Len(t, acct.Devices, 1)
	assert.Equal(t, rbacAuth.ChannelWeb, acct.Devices[0].Channel)
	assert.Nil(t, acct.OTP)
	require.NotNil(t, acct.Recovery)
	assert.Equal(t, "rec", acct.Recovery.Hash)
	assert.Nil(t, acct.Confirmation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT .* FROM accounts WHERE id = \$1$`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDWrapsDBError(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT .* FROM accounts WHERE id = \$1$`).
		WillReturnError(errors.New("db down"))

	_, err := s.FindByID(context.Background(), "a-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.NotErrorIs(t, err, rbacAuth.ErrAccountNotFound)
}

func TestPostgresCreateDuplicate(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT INTO accounts.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\)$`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := s.Create(context.Background(), rbacAuth.NewAccount{
		Email:        "dup@example.com",
		Role:         rbacAuth.RoleUser,
		PasswordHash: "x",
	})
	assert.ErrorIs(t, err, rbacAuth.ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsumeRecovery(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	now := time.UnixMilli(1_700_000_000_000)
	hash := "new-hash"

	mock.ExpectExec(`^UPDATE accounts SET password_hash = \$1, recovery_hash = \$2, recovery_expires_at = \$3, updated_at = \$4 WHERE id = \$5 AND recovery_hash = \$6 AND recovery_expires_at > \$7$`).
		WithArgs(hash, nil, nil, now.UnixMilli(), "a-1", "digest", now.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE accounts SET .* WHERE id = \$\d+ AND recovery_hash = \$\d+ AND recovery_expires_at > \$\d+$`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	filter := rbacAuth.AccountFilter{ID: "a-1", Field: rbacAuth.TokenRecovery, Hash: "digest", ValidAt: now}
	patch := rbacAuth.AccountPatch{PasswordHash: &hash, ClearRecovery: true}

	n, err := s.UpdateWhere(context.Background(), filter, patch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.UpdateWhere(context.Background(), filter, patch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMissingAccount(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE accounts SET status = \$1, updated_at = \$2 WHERE id = \$3$`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inactive := rbacAuth.StatusInactive
	err := s.Update(context.Background(), "gone", rbacAuth.AccountPatch{Status: &inactive})
	assert.ErrorIs(t, err, rbacAuth.ErrAccountNotFound)
}

func TestPostgresMigrateUsesSeam(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var gotDir string
	orig := gooseUpContext
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	defer func() { gooseUpContext = orig }()

	require.NoError(t, Migrate(context.Background(), db, DialectPostgres, nil))
	assert.Equal(t, "migrations/postgres", gotDir)
}

func TestPostgresList(t *testing.T) {
	s, mock, db := newPostgresWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(columnNames).
		AddRow(
			"a-1", "ann@example.com", "Ann", "superadmin", "$2a$12$hash", "active",
			false, "", int64(0), `[]`,
			nil, nil, nil, nil,
			nil, nil, nil, nil,
			int64(1_600_000_000_000), int64(1_600_000_000_000),
		).
		AddRow(
			"a-2", "bo@example.com", "Bo", "user", "$2a$12$hash", "inactive",
			false, "", int64(0), `[]`,
			nil, nil, nil, nil,
			nil, nil, nil, nil,
			int64(1_700_000_000_000), int64(1_700_000_000_000),
		)
	mock.ExpectQuery(`(?s)^SELECT .* FROM accounts ORDER BY created_at, email$`).WillReturnRows(rows)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-1", list[0].ID)
	assert.Equal(t, rbacAuth.StatusInactive, list[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
