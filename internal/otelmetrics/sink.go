// Package otelmetrics adapts go.opentelemetry.io/otel/metric into the
// core.MetricSink capability: counters and histograms keyed by
// dependency class, job state, and circuit state, as named throughout
// the Resilience Manager and Job Processor.
package otelmetrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Ramsey-B/reconcile/pkg/core"
)

// Sink wraps an otel Meter, lazily creating one instrument per metric
// name so callers never need to pre-declare instruments.
type Sink struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

// New wraps meter, the otel Meter configured at startup (typically
// otel.Meter("reconcile")).
func New(meter metric.Meter) *Sink {
	return &Sink{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// IncCounter implements core.MetricSink.
func (s *Sink) IncCounter(name string, labels map[string]string) {
	s.mu.Lock()
	c, ok := s.counters[name]
	if !ok {
		var err error
		c, err = s.meter.Int64Counter(name)
		if err != nil {
			s.mu.Unlock()
			return
		}
		s.counters[name] = c
	}
	s.mu.Unlock()

	c.Add(context.Background(), 1, metric.WithAttributes(toAttrs(labels)...))
}

// ObserveHistogram implements core.MetricSink.
func (s *Sink) ObserveHistogram(name string, value float64, labels map[string]string) {
	s.mu.Lock()
	h, ok := s.histograms[name]
	if !ok {
		var err error
		h, err = s.meter.Float64Histogram(name)
		if err != nil {
			s.mu.Unlock()
			return
		}
		s.histograms[name] = h
	}
	s.mu.Unlock()

	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

// SetGauge implements core.MetricSink.
func (s *Sink) SetGauge(name string, value float64, labels map[string]string) {
	s.mu.Lock()
	g, ok := s.gauges[name]
	if !ok {
		var err error
		g, err = s.meter.Float64Gauge(name)
		if err != nil {
			s.mu.Unlock()
			return
		}
		s.gauges[name] = g
	}
	s.mu.Unlock()

	g.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

var _ core.MetricSink = (*Sink)(nil)
