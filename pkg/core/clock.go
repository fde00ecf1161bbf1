package core

import "time"

// SystemClock is the default Clock backed by the standard library. The
// monotonic reading is relative to process start, which is all deadline
// arithmetic (job deadlines, circuit breaker timeouts) ever needs.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock backed by the real wall clock.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

func (c *SystemClock) Monotonic() time.Duration { return time.Since(c.start) }

// NoopMetricSink discards every observation. Used when no MetricSink is
// configured so call sites never need a nil check.
type NoopMetricSink struct{}

func (NoopMetricSink) IncCounter(name string, labels map[string]string)                   {}
func (NoopMetricSink) ObserveHistogram(name string, value float64, labels map[string]string) {}
func (NoopMetricSink) SetGauge(name string, value float64, labels map[string]string)         {}
