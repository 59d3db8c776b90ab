// Package rate implements the Redis-backed failed-login limiter.
//
// Counters use fixed windows: the first failure in a window sets the TTL and
// later failures only increment. A successful login deletes the counters.
package rate
