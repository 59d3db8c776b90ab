// Package jwt issues and verifies the signed session tokens carried in the
// accessToken cookie or an Authorization bearer header.
//
// Tokens are stateless: {sub, name, role, iat, exp} signed with a single
// process-wide key. Rotating the key invalidates every outstanding token.
// The role claim is informational; authorization decisions re-read the
// account's current role from storage.
package jwt
