package rbacAuth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/rbacAuth/notify"
)

// ErrorKind classifies errors for translation into a response status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

type kindError struct {
	kind   ErrorKind
	msg    string
	public string
}

func (e *kindError) Error() string { return e.msg }

func newKindError(kind ErrorKind, msg, public string) error {
	return &kindError{kind: kind, msg: msg, public: public}
}

const (
	msgInvalidSession = "Invalid or expired token"
	msgInternal       = "Internal server error"
)

var (
	// ErrValidation marks malformed or incomplete input.
	ErrValidation = newKindError(KindValidation, "validation failed", "Invalid request")
	// ErrInvalidRole is returned for a role outside the closed set.
	ErrInvalidRole = newKindError(KindValidation, "invalid role", "Invalid role")
	// ErrPasswordMismatch is returned when a new password and its confirmation differ.
	ErrPasswordMismatch = newKindError(KindValidation, "passwords do not match", "Passwords do not match")
	// ErrPasswordPolicy is returned for a password that violates the length policy.
	ErrPasswordPolicy = newKindError(KindValidation, "password policy violation", "Password does not meet requirements")
	// ErrMFANotEnabled is returned when an OTP is requested for an account without MFA.
	ErrMFANotEnabled = newKindError(KindValidation, "mfa not enabled", "Account not found or MFA not enabled")
	// ErrMFAAlreadyEnabled is returned by EnableMFA when MFA is already on.
	ErrMFAAlreadyEnabled = newKindError(KindConflict, "mfa already enabled", "MFA is already enabled")
	// ErrTokenInvalidOrExpired covers unknown, consumed and expired recovery or confirmation tokens.
	ErrTokenInvalidOrExpired = newKindError(KindValidation, "token invalid or expired", "Token is invalid or has expired")

	// ErrInvalidCredentials is returned for both an unknown email and a wrong password.
	ErrInvalidCredentials = newKindError(KindUnauthorized, "invalid credentials", "Invalid email or password")
	// ErrMissingToken means no session token was presented.
	ErrMissingToken = newKindError(KindUnauthorized, "missing session token", "Access token is required")
	// ErrInvalidToken means the session token failed verification.
	ErrInvalidToken = newKindError(KindUnauthorized, "invalid session token", msgInvalidSession)
	// ErrTokenExpired means the session token was valid but is past its expiry.
	ErrTokenExpired = newKindError(KindUnauthorized, "session token expired", msgInvalidSession)
	// ErrAccountNotFound means the token subject no longer exists.
	ErrAccountNotFound = newKindError(KindUnauthorized, "account not found", msgInvalidSession)
	// ErrInvalidOTP is returned for a wrong, replayed or out-of-window OTP.
	ErrInvalidOTP = newKindError(KindUnauthorized, "invalid otp", "Invalid OTP")

	// ErrForbidden means the account's current role is not allowed.
	ErrForbidden = newKindError(KindForbidden, "forbidden", "Forbidden")
	// ErrAccountInactive is returned for deactivated accounts.
	ErrAccountInactive = newKindError(KindForbidden, "account inactive", "Account is inactive")

	// ErrNotFound is returned by lookups exposed to administrators.
	ErrNotFound = newKindError(KindNotFound, "not found", "Not found")

	// ErrEmailTaken is returned when creating an account with an existing email.
	ErrEmailTaken = newKindError(KindConflict, "email already registered", "Email already registered")

	// ErrLoginRateLimited is returned while the failed-login budget is spent.
	ErrLoginRateLimited = newKindError(KindRateLimited, "login rate limited", "Too many login attempts, try again later")

	// ErrStorage wraps account store failures.
	ErrStorage = newKindError(KindInternal, "storage failure", msgInternal)
	// ErrDelivery wraps required notification failures.
	ErrDelivery = newKindError(KindInternal, "notification delivery failed", "Email could not be sent")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = newKindError(KindInternal, "engine not initialized", msgInternal)
)

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe message for err. Wrapped causes are
// never included.
func PublicMessage(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.public
	}
	if errors.Is(err, notify.ErrDelivery) {
		return "Email could not be sent"
	}
	return msgInternal
}
