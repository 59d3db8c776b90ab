package otel

import (
	"context"
	"errors"
	"fmt"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads. *rbacAuth.Engine implements it.
type Source interface {
	MetricsSnapshot() rbacAuth.MetricsSnapshot
	NoticesDropped() uint64
}

// bucketAttrs carries one le attribute set per histogram bucket.
var bucketAttrs = func() []metric.ObserveOption {
	out := make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		out[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}
	return out
}()

type histogramSeries struct {
	id      rbacAuth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter holds the registered instruments until Close.
type Exporter struct {
	source     Source
	reg        metric.Registration
	counters   map[rbacAuth.MetricID]metric.Int64ObservableCounter
	histograms []histogramSeries
	dropped    metric.Int64ObservableCounter
}

// New creates the instruments on meter and registers one callback that
// reads source on every collection. Histogram buckets are reported as a
// cumulative gauge named <histogram>_bucket with an le attribute.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	x := &Exporter{
		source:   source,
		counters: make(map[rbacAuth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		x.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		s := histogramSeries{id: def.ID}
		var err error
		if s.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription(def.Help+" Cumulative count per le bound.")); err != nil {
			return nil, fmt.Errorf("histogram %s buckets: %w", def.Name, err)
		}
		if s.count, err = meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Total samples.")); err != nil {
			return nil, fmt.Errorf("histogram %s count: %w", def.Name, err)
		}
		x.histograms = append(x.histograms, s)
		observables = append(observables, s.buckets, s.count)
	}

	var err error
	x.dropped, err = meter.Int64ObservableCounter(internaldefs.NoticesDroppedName,
		metric.WithDescription("Best-effort notices dropped because the queue was full."))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.NoticesDroppedName, err)
	}
	observables = append(observables, x.dropped)

	if x.reg, err = meter.RegisterCallback(x.observe, observables...); err != nil {
		return nil, fmt.Errorf("register metrics callback: %w", err)
	}
	return x, nil
}

func (x *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := x.source.MetricsSnapshot()
	for id, c := range x.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, s := range x.histograms {
		raw, ok := snap.Histograms[s.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(s.buckets, int64(n), bucketAttrs[i])
		}
		o.ObserveInt64(s.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(x.dropped, int64(x.source.NoticesDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter.
func (x *Exporter) Close() error {
	if x == nil || x.reg == nil {
		return nil
	}
	return x.reg.Unregister()
}
