package otelmetrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
)

// These tests exercise the Sink against the default no-op Meter (no SDK
// MeterProvider registered in this process): there is nothing to assert
// about recorded values, but they confirm instrument creation, caching,
// and concurrent use never panic, which is what a nil-safe MetricSink
// implementation must guarantee per §4.8's "metrics are optional" rule.
func TestSink_IncCounterDoesNotPanicAndCachesInstrument(t *testing.T) {
	s := New(otel.Meter("reconcile-test"))
	assert.NotPanics(t, func() {
		s.IncCounter("circuit_breaker_requests", map[string]string{"class": "database"})
		s.IncCounter("circuit_breaker_requests", map[string]string{"class": "cache"})
	})
	assert.Len(t, s.counters, 1)
}

func TestSink_ObserveHistogramDoesNotPanicAndCachesInstrument(t *testing.T) {
	s := New(otel.Meter("reconcile-test"))
	assert.NotPanics(t, func() {
		s.ObserveHistogram("job_duration_seconds", 1.5, nil)
	})
	assert.Len(t, s.histograms, 1)
}

func TestSink_SetGaugeDoesNotPanicAndCachesInstrument(t *testing.T) {
	s := New(otel.Meter("reconcile-test"))
	assert.NotPanics(t, func() {
		s.SetGauge("job_processed_total", 42, map[string]string{"job_id": "j1"})
	})
	assert.Len(t, s.gauges, 1)
}

func TestSink_ConcurrentUseIsSafe(t *testing.T) {
	s := New(otel.Meter("reconcile-test"))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncCounter("concurrent_counter", nil)
		}()
	}
	wg.Wait()
	assert.Len(t, s.counters, 1)
}
