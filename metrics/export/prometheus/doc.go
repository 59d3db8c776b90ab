// Package prometheus renders rbacAuth engine metrics in the Prometheus text
// exposition format.
//
// Counters are named rbacauth_*_total and latency histograms
// rbacauth_*_latency_seconds. The exporter reads Engine.MetricsSnapshot on
// every scrape and registers nothing globally; callers mount Handler.
package prometheus
