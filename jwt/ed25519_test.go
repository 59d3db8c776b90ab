package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var edEpoch = time.Unix(1_700_000_000, 0)

func edKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func edClaims(issuer, audience string, expiresIn time.Duration) SessionClaims {
	c := SessionClaims{Role: "user", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "acct-1",
		Issuer:    issuer,
		IssuedAt:  gjwt.NewNumericDate(edEpoch.Add(-time.Minute)),
		ExpiresAt: gjwt.NewNumericDate(edEpoch.Add(expiresIn)),
	}}
	if audience != "" {
		c.Audience = gjwt.ClaimStrings{audience}
	}
	return c
}

func signEd(t *testing.T, priv ed25519.PrivateKey, kid string, claims SessionClaims) string {
	t.Helper()
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestEd25519ClaimChecks(t *testing.T) {
	pub, priv := edKeyPair(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "rbacauth",
		Audience:      "api",
		Leeway:        30 * time.Second,
		Now:           func() time.Time { return edEpoch },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	issued, _, err := m.Issue("acct-1", "Ada", "user")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"issued by manager", issued, nil},
		{"foreign issuer", signEd(t, priv, "", edClaims("other", "api", time.Minute)), ErrTokenInvalid},
		{"foreign audience", signEd(t, priv, "", edClaims("rbacauth", "other-api", time.Minute)), ErrTokenInvalid},
		{"expired inside leeway", signEd(t, priv, "", edClaims("rbacauth", "api", -15*time.Second)), nil},
		{"expired past leeway", signEd(t, priv, "", edClaims("rbacauth", "api", -2*time.Minute)), ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Parse(tt.token)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Parse: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEd25519RejectsHMACToken(t *testing.T) {
	pub, _ := edKeyPair(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, Now: func() time.Time { return edEpoch }})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	hs, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, edClaims("", "", time.Minute)).SignedString([]byte(pub))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(hs); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("HS256 token signed with the public key: err = %v", err)
	}

	if _, _, err := m.Issue("acct-1", "Ada", "user"); err == nil {
		t.Fatal("verify-only manager issued a token")
	}
}

func TestEd25519KeySelectionByKid(t *testing.T) {
	pub1, priv1 := edKeyPair(t)
	pub2, priv2 := edKeyPair(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv2,
		KeyID:         "k2",
		VerifyKeys:    map[string][]byte{"k1": pub1, "k2": pub2},
		Now:           func() time.Time { return edEpoch },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	claims := edClaims("", "", time.Minute)
	if _, err := m.Parse(signEd(t, priv1, "k1", claims)); err != nil {
		t.Fatalf("retired key k1 no longer verifies: %v", err)
	}
	if _, err := m.Parse(signEd(t, priv1, "k2", claims)); err == nil {
		t.Fatal("k1 signature accepted under kid k2")
	}
	if _, err := m.Parse(signEd(t, priv1, "k3", claims)); err == nil {
		t.Fatal("unknown kid accepted")
	}
	if _, err := m.Parse(signEd(t, priv1, "", claims)); err == nil {
		t.Fatal("missing kid accepted")
	}

	current, _, err := m.Issue("acct-1", "Ada", "user")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Parse(current); err != nil {
		t.Fatalf("token from current key: %v", err)
	}
}

func TestEd25519AcceptsPEMKeys(t *testing.T) {
	pub, priv := edKeyPair(t)
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal private: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}

	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		PublicKey:     pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tok, _, err := m.Issue("acct-1", "Ada", "manager")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Role != "manager" {
		t.Fatalf("role = %q", claims.Role)
	}
}

func TestNewManagerRejectsBadEd25519Config(t *testing.T) {
	pub, _ := edKeyPair(t)
	for name, cfg := range map[string]Config{
		"no keys":      {TTL: time.Minute, SigningMethod: MethodEd25519},
		"garbage key":  {TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("not a key")},
		"empty kid":    {TTL: time.Minute, SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{" ": pub}},
		"kid not set":  {TTL: time.Minute, SigningMethod: MethodEd25519, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}},
		"huge leeway":  {TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, Leeway: time.Hour},
		"unknown algo": {TTL: time.Minute, SigningMethod: "rs256", PublicKey: pub},
	} {
		if _, err := NewManager(cfg); err == nil {
			t.Errorf("%s: config accepted", name)
		}
	}
}
