// Package sqlstore implements rbacAuth.AccountStore over database/sql for
// SQLite (github.com/mattn/go-sqlite3) and PostgreSQL
// (github.com/jackc/pgx/v5/stdlib). The schema is applied with goose from
// embedded migrations.
//
// Timestamps are stored as unix milliseconds and the device list as a JSON
// array. Conditional updates are a single UPDATE ... WHERE statement, which
// both databases execute atomically.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/google/uuid"
)

// Config selects the database.
type Config struct {
	Dialect         Dialect       `yaml:"dialect"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQL-backed AccountStore.
type Store struct {
	db      DBTX
	dialect dialect
	now     func() time.Time
}

// New wraps an open database handle.
func New(db DBTX, d Dialect) (*Store, error) {
	dl, err := lookupDialect(d)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: dl, now: time.Now}, nil
}

// Open connects to the database described by cfg and verifies the
// connection. SQLite handles are limited to one open connection.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dl, err := lookupDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn required")
	}

	db, err := sql.Open(dl.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	switch {
	case cfg.Dialect == DialectSQLite:
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// WithClock sets the clock used for CreatedAt and UpdatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

const accountColumns = `id, email, display_name, role, password_hash, status,
	mfa_enabled, mfa_secret, last_otp_step, devices,
	otp_hash, otp_expires_at, recovery_hash, recovery_expires_at,
	confirm_hash, confirm_expires_at, confirm_channel, confirm_value,
	created_at, updated_at`

func (s *Store) FindByEmail(ctx context.Context, email string) (*rbacAuth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`
	return s.queryOne(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) FindByID(ctx context.Context, id string) (*rbacAuth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return s.queryOne(ctx, query, id)
}

// List returns every account ordered by creation time, then email.
func (s *Store) List(ctx context.Context) ([]*rbacAuth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, email`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*rbacAuth.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// FindByToken returns the account whose pending token in field has digest
// hash and expires after now.
func (s *Store) FindByToken(ctx context.Context, field rbacAuth.TokenField, hash string, now time.Time) (*rbacAuth.Account, error) {
	cols, err := tokenColumns(field)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, rbacAuth.ErrAccountNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` +
		cols.hash + ` = ? AND ` + cols.expires + ` > ?`
	return s.queryOne(ctx, query, hash, now.UnixMilli())
}

func (s *Store) Create(ctx context.Context, in rbacAuth.NewAccount) (*rbacAuth.Account, error) {
	now := s.now()
	status := in.Status
	if status == "" {
		status = rbacAuth.StatusActive
	}
	acct := &rbacAuth.Account{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		Status:       status,
		Devices:      append([]rbacAuth.Device(nil), in.Devices...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	devices, err := encodeDevices(acct.Devices)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO accounts
		(id, email, display_name, role, password_hash, status, devices, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(query),
		acct.ID, acct.Email, acct.DisplayName, string(acct.Role), acct.PasswordHash,
		string(acct.Status), devices, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		if s.dialect.unique(err) {
			return nil, rbacAuth.ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	// Round to the stored precision so Create and Find agree.
	acct.CreatedAt = time.UnixMilli(now.UnixMilli())
	acct.UpdatedAt = acct.CreatedAt
	return acct, nil
}

func (s *Store) Update(ctx context.Context, id string, patch rbacAuth.AccountPatch) error {
	n, err := s.UpdateWhere(ctx, rbacAuth.AccountFilter{ID: id}, patch)
	if err != nil {
		return err
	}
	if n == 0 {
		return rbacAuth.ErrAccountNotFound
	}
	return nil
}

// UpdateWhere runs one UPDATE whose WHERE clause encodes filter. An empty
// filter is rejected rather than updating every row.
func (s *Store) UpdateWhere(ctx context.Context, filter rbacAuth.AccountFilter, patch rbacAuth.AccountPatch) (int64, error) {
	where, whereArgs, err := filterClause(filter)
	if err != nil {
		return 0, err
	}
	set, setArgs, err := setClause(patch, s.now())
	if err != nil {
		return 0, err
	}

	query := `UPDATE accounts SET ` + set + ` WHERE ` + where
	args := append(setArgs, whereArgs...)

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*rbacAuth.Account, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rbacAuth.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acct, nil
}

type tokenCols struct {
	hash    string
	expires string
}

func tokenColumns(field rbacAuth.TokenField) (tokenCols, error) {
	switch field {
	case rbacAuth.TokenOTP:
		return tokenCols{"otp_hash", "otp_expires_at"}, nil
	case rbacAuth.TokenRecovery:
		return tokenCols{"recovery_hash", "recovery_expires_at"}, nil
	case rbacAuth.TokenConfirmation:
		return tokenCols{"confirm_hash", "confirm_expires_at"}, nil
	default:
		return tokenCols{}, fmt.Errorf("unknown token field %q", field)
	}
}

func filterClause(f rbacAuth.AccountFilter) (string, []any, error) {
	var conds []string
	var args []any

	if f.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, f.ID)
	}
	if f.Field != "" {
		cols, err := tokenColumns(f.Field)
		if err != nil {
			return "", nil, err
		}
		if f.Hash == "" {
			return "", nil, errors.New("token filter requires a hash")
		}
		conds = append(conds, cols.hash+" = ?")
		args = append(args, f.Hash)
		if !f.ValidAt.IsZero() {
			conds = append(conds, cols.expires+" > ?")
			args = append(args, f.ValidAt.UnixMilli())
		}
	}
	if f.OTPStepBelow != 0 {
		conds = append(conds, "last_otp_step < ?")
		args = append(args, f.OTPStepBelow)
	}
	if f.MFAEnabled != nil {
		conds = append(conds, "mfa_enabled = ?")
		args = append(args, *f.MFAEnabled)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.SameDevices {
		devices, err := encodeDevices(f.Devices)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, "devices = ?")
		args = append(args, devices)
	}

	if len(conds) == 0 {
		return "", nil, errors.New("empty account filter")
	}
	return strings.Join(conds, " AND "), args, nil
}

func setClause(p rbacAuth.AccountPatch, now time.Time) (string, []any, error) {
	var cols []string
	var args []any
	set := func(col string, v any) {
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}

	if p.DisplayName != nil {
		set("display_name", *p.DisplayName)
	}
	if p.Role != nil {
		set("role", string(*p.Role))
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.MFA != nil {
		secret := p.MFA.Secret
		if !p.MFA.Enabled {
			secret = ""
		}
		set("mfa_enabled", p.MFA.Enabled)
		set("mfa_secret", secret)
	}
	if p.LastOTPStep != nil {
		set("last_otp_step", *p.LastOTPStep)
	}
	if p.Devices != nil {
		devices, err := encodeDevices(p.Devices)
		if err != nil {
			return "", nil, err
		}
		set("devices", devices)
	}

	switch {
	case p.ClearOTP:
		set("otp_hash", nil)
		set("otp_expires_at", nil)
	case p.OTP != nil:
		set("otp_hash", p.OTP.Hash)
		set("otp_expires_at", p.OTP.ExpiresAt.UnixMilli())
	}
	switch {
	case p.ClearRecovery:
		set("recovery_hash", nil)
		set("recovery_expires_at", nil)
	case p.Recovery != nil:
		set("recovery_hash", p.Recovery.Hash)
		set("recovery_expires_at", p.Recovery.ExpiresAt.UnixMilli())
	}
	switch {
	case p.ClearConfirmation:
		set("confirm_hash", nil)
		set("confirm_expires_at", nil)
		set("confirm_channel", nil)
		set("confirm_value", nil)
	case p.Confirmation != nil:
		set("confirm_hash", p.Confirmation.Hash)
		set("confirm_expires_at", p.Confirmation.ExpiresAt.UnixMilli())
		set("confirm_channel", string(p.Confirmation.Fingerprint.Channel))
		set("confirm_value", p.Confirmation.Fingerprint.Value)
	}

	set("updated_at", now.UnixMilli())
	return strings.Join(cols, ", "), args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*rbacAuth.Account, error) {
	var (
		a                          rbacAuth.Account
		role, status, devices      string
		otpHash, recHash, confHash sql.NullString
		confChannel, confValue     sql.NullString
		otpExp, recExp, confExp    sql.NullInt64
		createdAt, updatedAt       int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.DisplayName, &role, &a.PasswordHash, &status,
		&a.MFAEnabled, &a.MFASecret, &a.LastOTPStep, &devices,
		&otpHash, &otpExp, &recHash, &recExp,
		&confHash, &confExp, &confChannel, &confValue,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Role = rbacAuth.Role(role)
	a.Status = rbacAuth.AccountStatus(status)
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)

	a.Devices, err = decodeDevices(devices)
	if err != nil {
		return nil, err
	}
	if otpHash.Valid && otpExp.Valid {
		a.OTP = &rbacAuth.PendingToken{Hash: otpHash.String, ExpiresAt: time.UnixMilli(otpExp.Int64)}
	}
	if recHash.Valid && recExp.Valid {
		a.Recovery = &rbacAuth.PendingToken{Hash: recHash.String, ExpiresAt: time.UnixMilli(recExp.Int64)}
	}
	if confHash.Valid && confExp.Valid {
		a.Confirmation = &rbacAuth.PendingConfirmation{
			PendingToken: rbacAuth.PendingToken{Hash: confHash.String, ExpiresAt: time.UnixMilli(confExp.Int64)},
			Fingerprint: rbacAuth.Fingerprint{
				Channel: rbacAuth.Channel(confChannel.String),
				Value:   confValue.String,
			},
		}
	}
	return &a, nil
}

type deviceRecord struct {
	Channel  string `json:"channel"`
	Value    string `json:"value"`
	LastSeen int64  `json:"lastSeen"`
}

func encodeDevices(devices []rbacAuth.Device) (string, error) {
	records := make([]deviceRecord, 0, len(devices))
	for _, d := range devices {
		records = append(records, deviceRecord{
			Channel:  string(d.Channel),
			Value:    d.Value,
			LastSeen: d.LastSeen.UnixMilli(),
		})
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode devices: %w", err)
	}
	return string(b), nil
}

func decodeDevices(raw string) ([]rbacAuth.Device, error) {
	if raw == "" {
		return nil, nil
	}
	var records []deviceRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	devices := make([]rbacAuth.Device, 0, len(records))
	for _, r := range records {
		devices = append(devices, rbacAuth.Device{
			Channel:  rbacAuth.Channel(r.Channel),
			Value:    r.Value,
			LastSeen: time.UnixMilli(r.LastSeen),
		})
	}
	return devices, nil
}
