// Package notify delivers account notifications (OTP codes, login
// confirmation links, password reset links and informational notices).
//
// Required messages are sent synchronously through a [Notifier] so delivery
// failures reach the caller. Best-effort notices go through a [Dispatcher]
// or a [RedisQueue], both of which retry with capped exponential backoff
// and never block the request that produced them.
package notify
