package jwt

import (
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// MinHMACKeyBytes is the shortest HS256 secret NewManager accepts.
const MinHMACKeyBytes = 32

const maxLeeway = 2 * time.Minute

var (
	// ErrTokenExpired is returned by Parse for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid covers every other parse or verification failure.
	ErrTokenInvalid = errors.New("session token invalid")
)

// Config is fixed for the lifetime of a Manager.
//
// For HS256, PrivateKey is the shared secret. For Ed25519, keys are raw
// bytes or PEM; PrivateKey may be omitted on verify-only instances.
// VerifyKeys, when set, selects the verification key by the token's kid.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	// Now overrides the clock for issuance and validation.
	Now func() time.Time
}

// SessionClaims is the token payload. Subject holds the account id.
type SessionClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// keyring holds decoded keys so Issue and Parse never touch PEM.
type keyring struct {
	method jwt.SigningMethod
	sign   crypto.PrivateKey
	verify any
	byKid  map[string]any
	kid    string
}

func (k *keyring) lookup(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	switch {
	case len(k.byKid) > 0:
		if key, ok := k.byKid[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("no verification key for kid %q", kid)
	case k.kid != "" && kid != k.kid:
		return nil, fmt.Errorf("no verification key for kid %q", kid)
	case k.verify == nil:
		return nil, errors.New("no verification key configured")
	}
	return k.verify, nil
}

// Manager signs and parses session tokens.
type Manager struct {
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
	keys     *keyring
	parser   *jwt.Parser
}

// NewManager decodes keys and validates cfg for the chosen signing method.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("session leeway must be within [0, %s]", maxLeeway)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	keys, err := buildKeyring(cfg)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      cfg.Now,
		keys:     keys,
		parser:   jwt.NewParser(opts...),
	}, nil
}

func buildKeyring(cfg Config) (*keyring, error) {
	k := &keyring{kid: strings.TrimSpace(cfg.KeyID)}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < MinHMACKeyBytes {
			return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", MinHMACKeyBytes)
		}
		k.method = jwt.SigningMethodHS256
		k.sign, k.verify = cfg.PrivateKey, cfg.PrivateKey
		if len(cfg.VerifyKeys) > 0 {
			k.byKid = make(map[string]any, len(cfg.VerifyKeys))
			for kid, secret := range cfg.VerifyKeys {
				k.byKid[kid] = secret
			}
		}

	case MethodEd25519:
		k.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := decodeEdPrivate(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			k.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := decodeEdPublic(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			k.verify = pub
		}
		if len(cfg.VerifyKeys) > 0 {
			k.byKid = make(map[string]any, len(cfg.VerifyKeys))
			for kid, raw := range cfg.VerifyKeys {
				pub, err := decodeEdPublic(raw)
				if err != nil {
					return nil, fmt.Errorf("verify key %q: %w", kid, err)
				}
				k.byKid[kid] = pub
			}
		}
		if k.verify == nil && len(k.byKid) == 0 {
			return nil, errors.New("ed25519 requires a public key or verify key set")
		}

	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	for kid := range k.byKid {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key set contains an empty kid")
		}
	}
	if k.kid != "" && len(k.byKid) > 0 {
		if _, ok := k.byKid[k.kid]; !ok {
			return nil, fmt.Errorf("KeyID %q is not in VerifyKeys", k.kid)
		}
	}
	return k, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a token for accountID and returns it with its expiry, which
// is truncated to whole seconds like the exp claim.
func (m *Manager) Issue(accountID, displayName, role string) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, errors.New("account id required")
	}
	if m.keys.sign == nil {
		return "", time.Time{}, errors.New("no signing key configured")
	}

	now := m.now()
	claims := SessionClaims{
		Name: displayName,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.keys.method, claims)
	if m.keys.kid != "" {
		token.Header["kid"] = m.keys.kid
	}
	signed, err := token.SignedString(m.keys.sign)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies signature, algorithm, expiry, issuer and audience.
// Expired tokens yield ErrTokenExpired; everything else yields ErrTokenInvalid.
func (m *Manager) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.keys.lookup)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !token.Valid || claims.Subject == "":
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func decodeEdPrivate(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	key, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("ed25519 private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("ed25519 private key: unexpected key type")
	}
	return priv, nil
}

func decodeEdPublic(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("ed25519 public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("ed25519 public key: unexpected key type")
	}
	return pub, nil
}
