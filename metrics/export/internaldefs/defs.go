package internaldefs

import (
	"strconv"

	rbacAuth "github.com/MrEthical07/rbacAuth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   rbacAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   rbacAuth.MetricID
	Name string
	Help string
}

// NoticesDroppedName is the counter for best-effort notices dropped by the
// engine's dispatcher.
const NoticesDroppedName = "rbacauth_notices_dropped_total"

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: rbacAuth.MetricLoginSuccess, Name: "rbacauth_login_success_total", Help: "Logins that issued a session."},
	{ID: rbacAuth.MetricLoginFailure, Name: "rbacauth_login_failure_total", Help: "Logins rejected for bad credentials or OTP."},
	{ID: rbacAuth.MetricLoginRateLimited, Name: "rbacauth_login_rate_limited_total", Help: "Logins refused by the failed-login limiter."},
	{ID: rbacAuth.MetricOTPChallengeSent, Name: "rbacauth_otp_challenge_sent_total", Help: "Emailed OTP challenges."},
	{ID: rbacAuth.MetricOTPSuccess, Name: "rbacauth_otp_success_total", Help: "Accepted OTP codes."},
	{ID: rbacAuth.MetricOTPFailure, Name: "rbacauth_otp_failure_total", Help: "Rejected or replayed OTP codes."},
	{ID: rbacAuth.MetricDeviceConfirmationRequired, Name: "rbacauth_device_confirmation_required_total", Help: "Logins held for device confirmation."},
	{ID: rbacAuth.MetricDeviceConfirmed, Name: "rbacauth_device_confirmed_total", Help: "Confirmed devices."},
	{ID: rbacAuth.MetricDeviceConfirmFailure, Name: "rbacauth_device_confirm_failure_total", Help: "Invalid or expired confirmation links."},
	{ID: rbacAuth.MetricSessionIssued, Name: "rbacauth_session_issued_total", Help: "Signed session tokens."},
	{ID: rbacAuth.MetricSessionRejected, Name: "rbacauth_session_rejected_total", Help: "Session tokens that failed verification."},
	{ID: rbacAuth.MetricAuthorizeSuccess, Name: "rbacauth_authorize_success_total", Help: "Requests admitted by the role gate."},
	{ID: rbacAuth.MetricAuthorizeForbidden, Name: "rbacauth_authorize_forbidden_total", Help: "Requests refused for role or status."},
	{ID: rbacAuth.MetricPasswordResetRequest, Name: "rbacauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: rbacAuth.MetricPasswordResetSuccess, Name: "rbacauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: rbacAuth.MetricPasswordResetFailure, Name: "rbacauth_password_reset_failure_total", Help: "Invalid or expired reset tokens."},
	{ID: rbacAuth.MetricPasswordRehashed, Name: "rbacauth_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: rbacAuth.MetricMFAEnabled, Name: "rbacauth_mfa_enabled_total", Help: "MFA enrollments."},
	{ID: rbacAuth.MetricMFADisabled, Name: "rbacauth_mfa_disabled_total", Help: "MFA removals."},
	{ID: rbacAuth.MetricAccountCreated, Name: "rbacauth_account_created_total", Help: "Created accounts."},
	{ID: rbacAuth.MetricAccountDeactivated, Name: "rbacauth_account_deactivated_total", Help: "Deactivated accounts."},
	{ID: rbacAuth.MetricNotificationFailure, Name: "rbacauth_notification_failure_total", Help: "Required emails that could not be sent."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: rbacAuth.MetricAuthorizeLatency, Name: "rbacauth_authorize_latency_seconds", Help: "Authorize latency."},
	{ID: rbacAuth.MetricLoginLatency, Name: "rbacauth_login_latency_seconds", Help: "Login latency."},
}

// Buckets holds one histogram's counts, overflow bucket last.
type Buckets = [rbacAuth.HistogramBucketCount]uint64

// HistogramBounds are the le labels matching the engine buckets, "+Inf" last.
var HistogramBounds = func() []string {
	out := make([]string, 0, rbacAuth.HistogramBucketCount)
	for _, bound := range rbacAuth.LatencyBuckets {
		out = append(out, strconv.FormatFloat(bound.Seconds(), 'f', -1, 64))
	}
	return append(out, "+Inf")
}()

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) Buckets {
	var out Buckets
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw Buckets) Buckets {
	var out Buckets
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
