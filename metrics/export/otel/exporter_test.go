package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// stubSource hands out copies so collection never races the test's writes.
type stubSource struct {
	mu       sync.Mutex
	counters map[rbacAuth.MetricID]uint64
	hist     map[rbacAuth.MetricID][]uint64
	dropped  uint64
}

func (s *stubSource) MetricsSnapshot() rbacAuth.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := rbacAuth.MetricsSnapshot{
		Counters:   map[rbacAuth.MetricID]uint64{},
		Histograms: map[rbacAuth.MetricID][]uint64{},
	}
	for id, v := range s.counters {
		snap.Counters[id] = v
	}
	for id, b := range s.hist {
		snap.Histograms[id] = append([]uint64(nil), b...)
	}
	return snap
}

func (s *stubSource) NoticesDropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *stubSource) set(id rbacAuth.MetricID, v uint64) {
	s.mu.Lock()
	s.counters[id] = v
	s.mu.Unlock()
}

func setup(t *testing.T, src Source) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	x, err := New(provider.Meter("rbacauth-test"), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := x.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumValue(t *testing.T, data map[string]metricdata.Aggregation, name string) int64 {
	t.Helper()
	sum, ok := data[name].(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("%s: not a single-point sum: %#v", name, data[name])
	}
	return sum.DataPoints[0].Value
}

func TestExporterCollectsCountersAndBuckets(t *testing.T) {
	src := &stubSource{
		counters: map[rbacAuth.MetricID]uint64{rbacAuth.MetricLoginSuccess: 3},
		hist:     map[rbacAuth.MetricID][]uint64{rbacAuth.MetricLoginLatency: {2, 0, 1, 0, 0, 0, 0, 1}},
		dropped:  4,
	}
	data := collect(t, setup(t, src))

	if got := sumValue(t, data, "rbacauth_login_success_total"); got != 3 {
		t.Errorf("login success = %d", got)
	}
	if got := sumValue(t, data, "rbacauth_login_failure_total"); got != 0 {
		t.Errorf("login failure = %d", got)
	}
	if got := sumValue(t, data, "rbacauth_notices_dropped_total"); got != 4 {
		t.Errorf("notices dropped = %d", got)
	}

	buckets, ok := data["rbacauth_login_latency_seconds_bucket"].(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("bucket gauge missing")
	}
	byLE := map[string]int64{}
	for _, dp := range buckets.DataPoints {
		le, _ := dp.Attributes.Value(attribute.Key("le"))
		byLE[le.AsString()] = dp.Value
	}
	want := map[string]int64{"0.005": 2, "0.01": 2, "0.025": 3, "0.5": 3, "+Inf": 4}
	for le, n := range want {
		if byLE[le] != n {
			t.Errorf("bucket le=%s = %d, want %d", le, byLE[le], n)
		}
	}

	if g, ok := data["rbacauth_authorize_latency_seconds_bucket"].(metricdata.Gauge[int64]); ok && len(g.DataPoints) != 0 {
		t.Errorf("histogram without samples reported %d points", len(g.DataPoints))
	}
}

func TestNewRejectsNilArguments(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	if _, err := New(provider.Meter("x"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("nil source: %v", err)
	}
	if _, err := New(nil, &stubSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("nil meter: %v", err)
	}
}

func TestCollectWhileSourceChanges(t *testing.T) {
	src := &stubSource{counters: map[rbacAuth.MetricID]uint64{}}
	reader := setup(t, src)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.set(rbacAuth.MetricAuthorizeSuccess, v)
			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i))
	}
	wg.Wait()

	if got := sumValue(t, collect(t, reader), "rbacauth_authorize_success_total"); got < 1 || got > 8 {
		t.Fatalf("authorize success = %d", got)
	}
}
