// Package totp generates and checks RFC 6238 time-based one-time passwords
// on top of github.com/pquerna/otp.
//
// A code belongs to the 30 second step in which it was generated. Validation
// accepts a code for Window steps after its own step has elapsed and for
// Window steps ahead of the verifier's clock, so a code generated at T with
// Window=2 still verifies at T+90s but not at T+150s.
package totp
