package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        "rbacauth",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, exp, err := m.Issue("acct-1", "Ada", "manager")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(clock.now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "acct-1" || claims.Name != "Ada" || claims.Role != "manager" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.IssuedAt.Time.Equal(clock.now) {
		t.Fatalf("unexpected iat %v", claims.IssuedAt.Time)
	}
}

func TestParseExpiredReturnsErrTokenExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, _, err := m.Issue("acct-1", "Ada", "user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.now = clock.now.Add(time.Hour - time.Second)
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("expected token valid just before expiry: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Second)
	if _, err := m.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsEverySingleBitPayloadMutation(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, _, err := m.Issue("acct-1", "Ada", "user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}

	start := len(parts[0]) + 1
	end := start + len(parts[1])
	raw := []byte(token)
	for i := start; i < end; i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(raw))
			copy(mutated, raw)
			mutated[i] ^= 1 << bit
			_, err := m.Parse(string(mutated))
			if err == nil {
				t.Fatalf("mutation at byte %d bit %d was accepted", i, bit)
			}
			if errors.Is(err, ErrTokenExpired) {
				t.Fatalf("mutation at byte %d bit %d reported expiry instead of invalid", i, bit)
			}
		}
	}
}

func TestParseRejectsOtherSecret(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)
	token, _, _ := m.Issue("acct-1", "Ada", "user")

	rotated, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("fedcba9876543210fedcba9876543210"),
		Issuer:        "rbacauth",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := rotated.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after key rotation, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithmAndNone(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	claims := SessionClaims{Role: "superadmin", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "acct-1",
		Issuer:    "rbacauth",
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
	}}
	edTok, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if _, err := m.Parse(edTok); err == nil {
		t.Fatal("expected EdDSA token to be rejected by HS256 manager")
	}

	noneTok, _ := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if _, err := m.Parse(noneTok); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func TestParseRequiresExpiryAndSubject(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	noExp := SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "acct-1", Issuer: "rbacauth"}}
	tok, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, noExp).SignedString(testSecret)
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}

	noSub := SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "rbacauth",
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
	}}
	tok, _ = gjwt.NewWithClaims(gjwt.SigningMethodHS256, noSub).SignedString(testSecret)
	if _, err := m.Parse(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for missing subject, got %v", err)
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager(Config{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short HS256 secret to be rejected")
	}
	if _, err := NewManager(Config{TTL: 0, SigningMethod: MethodHS256, PrivateKey: testSecret}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
}
