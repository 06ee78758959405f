// Package latency keeps a running average of RPC round trips to the head unit.
package latency

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

// Sampler accumulates a cumulative average of successful call durations.
// It is safe for one writer and any number of concurrent readers.
type Sampler struct {
	clock    clock.PassiveClock
	observer prometheus.Observer

	mu    sync.RWMutex
	total time.Duration
	count int64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Sampler) { s.clock = c }
}

// WithObserver forwards every accepted sample, in seconds, to o.
func WithObserver(o prometheus.Observer) Option {
	return func(s *Sampler) { s.observer = o }
}

// NewSampler returns an empty sampler.
func NewSampler(opts ...Option) *Sampler {
	s := &Sampler{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Time runs op and records its duration only if op succeeds. The error from
// a failed op is returned untouched and nothing is recorded.
func Time[T any](s *Sampler, op func() (T, error)) (T, error) {
	start := s.clock.Now()
	v, err := op()
	if err != nil {
		return v, err
	}
	s.Add(s.clock.Since(start))
	return v, nil
}

// Add records one sample.
func (s *Sampler) Add(d time.Duration) {
	s.mu.Lock()
	s.total += d
	s.count++
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.Observe(d.Seconds())
	}
}

// Average returns the mean of all samples, or zero before the first one.
func (s *Sampler) Average() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return 0
	}
	return s.total / time.Duration(s.count)
}

// Samples returns how many samples have been recorded.
func (s *Sampler) Samples() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
