package jwt

import (
	"testing"
	"time"
)

func FuzzParse(f *testing.F) {
	m, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        "rbacauth",
	})
	if err != nil {
		f.Fatal(err)
	}
	token, _, err := m.Issue("acct-1", "Ada", "superadmin")
	if err != nil {
		f.Fatal(err)
	}

	for _, seed := range []string{token, "", "a.b.c", token + "x", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0."} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		claims, err := m.Parse(raw)
		if err == nil && (claims == nil || claims.Subject == "") {
			t.Fatalf("Parse(%q) accepted a token without a subject", raw)
		}
	})
}
