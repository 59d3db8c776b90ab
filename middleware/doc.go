// Package middleware adapts rbacAuth.Engine authorization to net/http.
//
// [Authorize] reads the session token from the cookie or the
// Authorization header, calls Engine.Authorize with the allowed roles and
// stores the resolved account in the request context. All decisions are
// delegated to the Engine; this package only translates them to HTTP.
package middleware
