// Package otel publishes rbacAuth engine metrics through an OpenTelemetry
// Meter supplied by the caller.
//
// Counters become Int64ObservableCounters. Each latency histogram becomes a
// pair of gauges: <name>_bucket carrying cumulative counts under an le
// attribute, and <name>_count. One callback reads Engine.MetricsSnapshot
// per collection.
package otel
