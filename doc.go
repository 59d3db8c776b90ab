// Package rbacAuth is the authentication and authorization core of a
// single-tenant team-management API: password verification, an optional
// TOTP second factor, device recognition with emailed confirmation links,
// password recovery, stateless signed session tokens and a role gate.
//
// An [Engine] is assembled with [Builder] and is safe for concurrent use.
// Persistence is supplied through [AccountStore] (see store/memory and
// store/sqlstore) and outbound email through [Notifier] (see notify).
//
// # Sessions
//
// Session tokens are signed JWTs carrying the account id, display name and
// role. Nothing is stored server-side, so logout only clears the cookie.
// The role claim is informational: [Engine.Authorize] loads the account on
// every call and checks the stored role and status, so demotion and
// deactivation apply to tokens that are already issued.
//
// # Single-use tokens
//
// Recovery, device-confirmation and emailed OTP tokens are stored as
// SHA-256 digests with an expiry. They are consumed through
// [AccountStore.UpdateWhere] so that clearing the token and applying the
// change it authorizes happen in one step.
//
// # Errors
//
// Every error returned by the Engine maps to an HTTP status through
// [HTTPStatus] and to a client-safe message through [PublicMessage].
package rbacAuth
