package rbacAuth

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser       Role = "user"
	RoleManager    Role = "manager"
	RoleSuperadmin Role = "superadmin"
)

// Roles lists every valid role, lowest privilege first.
var Roles = []Role{RoleUser, RoleManager, RoleSuperadmin}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleSuperadmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// AccountStatus is active or inactive. Accounts are never hard-deleted.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
)

// Channel is the client platform a fingerprint was observed on.
type Channel string

const (
	ChannelWeb     Channel = "web"
	ChannelIOS     Channel = "ios"
	ChannelAndroid Channel = "android"
)

// ParseChannel defaults an empty value to ChannelWeb.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ChannelWeb, nil
	case ChannelWeb, ChannelIOS, ChannelAndroid:
		return c, nil
	default:
		return "", ErrValidation
	}
}

// Fingerprint identifies a client: the IP address for web, a device
// identifier for mobile channels.
type Fingerprint struct {
	Channel Channel `json:"channel"`
	Value   string  `json:"value"`
}

func (f Fingerprint) IsZero() bool { return f.Value == "" }

// Device is a recognized fingerprint.
type Device struct {
	Channel  Channel   `json:"channel"`
	Value    string    `json:"value"`
	LastSeen time.Time `json:"last_seen"`
}

// PendingToken is the stored form of a single-use secret. Only the SHA-256
// digest of the raw value is persisted.
type PendingToken struct {
	Hash      string
	ExpiresAt time.Time
}

// Valid reports whether the token is unexpired at now.
func (p *PendingToken) Valid(now time.Time) bool {
	return p != nil && p.Hash != "" && now.Before(p.ExpiresAt)
}

// PendingConfirmation is a login held until the owner confirms the new
// fingerprint by following the emailed link.
type PendingConfirmation struct {
	PendingToken
	Fingerprint Fingerprint
}

// Account is the persisted authentication record.
//
// MFASecret is non-empty iff MFAEnabled. PasswordHash is never empty.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string
	Status       AccountStatus
	MFAEnabled   bool
	MFASecret    string
	// LastOTPStep is the most recent TOTP step accepted for this account.
	LastOTPStep  int64
	Devices      []Device
	OTP          *PendingToken
	Recovery     *PendingToken
	Confirmation *PendingConfirmation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a != nil && a.Status == StatusActive
}

// HasDevice reports whether fp is among the recognized devices.
func (a *Account) HasDevice(fp Fingerprint) bool {
	if a == nil {
		return false
	}
	for _, d := range a.Devices {
		if d.Channel == fp.Channel && d.Value == fp.Value {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Devices != nil {
		out.Devices = make([]Device, len(a.Devices))
		copy(out.Devices, a.Devices)
	}
	if a.OTP != nil {
		v := *a.OTP
		out.OTP = &v
	}
	if a.Recovery != nil {
		v := *a.Recovery
		out.Recovery = &v
	}
	if a.Confirmation != nil {
		v := *a.Confirmation
		out.Confirmation = &v
	}
	return &out
}

// MFAState sets the MFA flag and secret together.
type MFAState struct {
	Enabled bool
	Secret  string
}

// AccountPatch is a partial update. Nil pointers and false flags leave the
// corresponding field unchanged.
type AccountPatch struct {
	DisplayName  *string
	Role         *Role
	PasswordHash *string
	Status       *AccountStatus
	MFA          *MFAState
	LastOTPStep  *int64
	// Devices replaces the full device list when non-nil.
	Devices      []Device
	OTP          *PendingToken
	Recovery     *PendingToken
	Confirmation *PendingConfirmation

	ClearOTP          bool
	ClearRecovery     bool
	ClearConfirmation bool
}

// Apply mutates a in place and stamps UpdatedAt.
func (p AccountPatch) Apply(a *Account, now time.Time) {
	if p.DisplayName != nil {
		a.DisplayName = *p.DisplayName
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.MFA != nil {
		a.MFAEnabled = p.MFA.Enabled
		a.MFASecret = p.MFA.Secret
		if !p.MFA.Enabled {
			a.MFASecret = ""
		}
	}
	if p.LastOTPStep != nil {
		a.LastOTPStep = *p.LastOTPStep
	}
	if p.Devices != nil {
		a.Devices = make([]Device, len(p.Devices))
		copy(a.Devices, p.Devices)
	}
	if p.ClearOTP {
		a.OTP = nil
	} else if p.OTP != nil {
		v := *p.OTP
		a.OTP = &v
	}
	if p.ClearRecovery {
		a.Recovery = nil
	} else if p.Recovery != nil {
		v := *p.Recovery
		a.Recovery = &v
	}
	if p.ClearConfirmation {
		a.Confirmation = nil
	} else if p.Confirmation != nil {
		v := *p.Confirmation
		a.Confirmation = &v
	}
	a.UpdatedAt = now
}

// TokenField names a pending-token slot on Account.
type TokenField string

const (
	TokenOTP          TokenField = "otp"
	TokenRecovery     TokenField = "recovery"
	TokenConfirmation TokenField = "confirmation"
)

// AccountFilter is the precondition of a conditional update. Every set
// field must match for the row to be updated.
type AccountFilter struct {
	ID string
	// Field and Hash match a pending token; ValidAt additionally requires the
	// token to be unexpired at that instant.
	Field   TokenField
	Hash    string
	ValidAt time.Time
	// OTPStepBelow requires LastOTPStep < OTPStepBelow when non-zero.
	OTPStepBelow int64
	// MFAEnabled, when set, requires the current MFA flag to match.
	MFAEnabled *bool
	// Status, when set, requires the account status to match.
	Status AccountStatus
	// SameDevices requires the recognized devices to equal Devices, so a
	// device list computed from an earlier read is not written over a
	// concurrent change.
	SameDevices bool
	Devices     []Device
}

// Matches reports whether a satisfies f.
func (f AccountFilter) Matches(a *Account) bool {
	if a == nil {
		return false
	}
	if f.ID != "" && a.ID != f.ID {
		return false
	}
	if f.Field != "" {
		tok := a.pendingToken(f.Field)
		if tok == nil || tok.Hash == "" || tok.Hash != f.Hash {
			return false
		}
		if !f.ValidAt.IsZero() && !f.ValidAt.Before(tok.ExpiresAt) {
			return false
		}
	}
	if f.OTPStepBelow != 0 && a.LastOTPStep >= f.OTPStepBelow {
		return false
	}
	if f.MFAEnabled != nil && a.MFAEnabled != *f.MFAEnabled {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.SameDevices && !slices.EqualFunc(a.Devices, f.Devices, sameDevice) {
		return false
	}
	return true
}

func sameDevice(a, b Device) bool {
	return a.Channel == b.Channel && a.Value == b.Value && a.LastSeen.Equal(b.LastSeen)
}

func (a *Account) pendingToken(field TokenField) *PendingToken {
	switch field {
	case TokenOTP:
		return a.OTP
	case TokenRecovery:
		return a.Recovery
	case TokenConfirmation:
		if a.Confirmation == nil {
			return nil
		}
		return &a.Confirmation.PendingToken
	default:
		return nil
	}
}

// NewAccount is the input to AccountStore.Create.
type NewAccount struct {
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string
	Status       AccountStatus
	Devices      []Device
}

// AccountStore persists accounts. Implementations return ErrAccountNotFound
// for missing rows and ErrEmailTaken for a duplicate email on Create. Email
// lookups are case-insensitive.
//
// UpdateWhere applies patch to every account matching filter in a single
// atomic step and returns the number of accounts updated. Single-use tokens
// are consumed through it so that two concurrent consumers cannot both
// observe success.
//
// List returns every account, oldest first.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByToken(ctx context.Context, field TokenField, hash string, now time.Time) (*Account, error)
	Create(ctx context.Context, in NewAccount) (*Account, error)
	Update(ctx context.Context, id string, patch AccountPatch) error
	UpdateWhere(ctx context.Context, filter AccountFilter, patch AccountPatch) (int64, error)
	List(ctx context.Context) ([]*Account, error)
}

// LoginRequest carries one login attempt.
type LoginRequest struct {
	Email       string
	Password    string
	OTP         string
	Fingerprint Fingerprint
}

// LoginOutcome distinguishes a completed login from the two challenge states.
type LoginOutcome string

const (
	OutcomeAuthenticated        LoginOutcome = "authenticated"
	OutcomeOTPSent              LoginOutcome = "otp_sent"
	OutcomeConfirmationRequired LoginOutcome = "confirmation_required"
)

// LoginResult is returned by Login and ConfirmLogin. Token is set only for
// OutcomeAuthenticated.
type LoginResult struct {
	Outcome   LoginOutcome
	Token     string
	ExpiresAt time.Time
	Account   *Account
}

// SessionIdentity is the decoded content of a session token.
type SessionIdentity struct {
	AccountID   string
	DisplayName string
	Role        Role
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// MFASetup is returned once when MFA is enabled.
type MFASetup struct {
	Secret          string
	ProvisioningURI string
}

// CreateAccountRequest is the input to Engine.CreateAccount.
type CreateAccountRequest struct {
	Email       string
	DisplayName string
	Password    string
	Role        Role
}

// SeedRequest describes the bootstrap superadmin.
type SeedRequest struct {
	Email       string
	DisplayName string
	Password    string
}
