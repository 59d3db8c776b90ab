// Package memory provides an in-process rbacAuth.AccountStore for tests
// and single-node development servers.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/google/uuid"
)

// Store keeps accounts in a map guarded by a single mutex. Every method
// returns copies, so callers never share state with the store.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*rbacAuth.Account
	byEmail map[string]string
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*rbacAuth.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// WithClock sets the clock used for CreatedAt and UpdatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) FindByEmail(_ context.Context, email string) (*rbacAuth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, rbacAuth.ErrAccountNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) FindByID(_ context.Context, id string) (*rbacAuth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, rbacAuth.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

// FindByToken returns the account whose pending token in field has digest
// hash and has not expired at now.
func (s *Store) FindByToken(_ context.Context, field rbacAuth.TokenField, hash string, now time.Time) (*rbacAuth.Account, error) {
	if hash == "" {
		return nil, rbacAuth.ErrAccountNotFound
	}
	filter := rbacAuth.AccountFilter{Field: field, Hash: hash, ValidAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.byID {
		if filter.Matches(acct) {
			return acct.Clone(), nil
		}
	}
	return nil, rbacAuth.ErrAccountNotFound
}

func (s *Store) Create(_ context.Context, in rbacAuth.NewAccount) (*rbacAuth.Account, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, rbacAuth.ErrEmailTaken
	}

	now := s.now()
	status := in.Status
	if status == "" {
		status = rbacAuth.StatusActive
	}
	acct := &rbacAuth.Account{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		Status:       status,
		Devices:      append([]rbacAuth.Device(nil), in.Devices...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[acct.ID] = acct
	s.byEmail[email] = acct.ID
	return acct.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, patch rbacAuth.AccountPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return rbacAuth.ErrAccountNotFound
	}
	patch.Apply(acct, s.now())
	return nil
}

// UpdateWhere applies patch to every account matching filter while holding
// the store lock.
func (s *Store) UpdateWhere(_ context.Context, filter rbacAuth.AccountFilter, patch rbacAuth.AccountPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filter.ID != "" {
		acct, ok := s.byID[filter.ID]
		if !ok || !filter.Matches(acct) {
			return 0, nil
		}
		patch.Apply(acct, s.now())
		return 1, nil
	}

	var n int64
	now := s.now()
	for _, acct := range s.byID {
		if filter.Matches(acct) {
			patch.Apply(acct, now)
			n++
		}
	}
	return n, nil
}

// List returns copies of every account ordered by creation time, then
// email.
func (s *Store) List(_ context.Context) ([]*rbacAuth.Account, error) {
	s.mu.Lock()
	out := make([]*rbacAuth.Account, 0, len(s.byID))
	for _, acct := range s.byID {
		out = append(out, acct.Clone())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b *rbacAuth.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Email, b.Email)
	})
	return out, nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
