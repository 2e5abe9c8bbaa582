// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg BreakerConfig, onChange StateChangeFunc) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("worker/generate", cfg, onChange)
	cb.now = clock.now
	cb.since = clock.now()
	return cb, clock
}

var errBoom = errors.New("boom")

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

// call runs one guarded request that ends with err.
func call(cb *CircuitBreaker, err error) error {
	allowed, release := cb.Allow()
	if !allowed {
		return ErrCircuitOpen
	}
	if release != nil {
		defer release()
	}
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("k", BreakerConfig{}, nil)
	assert.Equal(t, DefaultBreakerConfig(), cb.config)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, "k", cb.Key())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute}, func(key string, from, to CircuitState) {
		transitions = append(transitions, key+":"+from.String()+"->"+to.String())
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, call(cb, errBoom), errBoom)
	}
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, []string{"worker/generate:closed->open"}, transitions)

	assert.ErrorIs(t, call(cb, nil), ErrCircuitOpen)

	stats := cb.Stats()
	assert.Equal(t, int64(4), stats.Calls)
	assert.Equal(t, int64(3), stats.Failures)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 2}, nil)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: 30 * time.Second, HalfOpenMax: 1}, nil)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	clock.advance(29 * time.Second)
	allowed, _ := cb.Allow()
	assert.False(t, allowed)

	clock.advance(time.Second)
	allowed, release := cb.Allow()
	require.True(t, allowed)
	require.NotNil(t, release)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	second, _ := cb.Allow()
	assert.False(t, second, "only one probe at a time")

	cb.RecordSuccess()
	release()
	release()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: time.Second}, nil)
	cb.RecordFailure()
	clock.advance(time.Second)

	assert.ErrorIs(t, call(cb, errBoom), errBoom)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1}, nil)
	cb.RecordFailure()
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().ConsecutiveFailures)
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker("k", BreakerConfig{FailureThreshold: 1000}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = errBoom
			}
			_ = call(cb, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(50), cb.Stats().Calls)
	assert.Equal(t, int64(25), cb.Stats().Failures)
}

func TestRegistry_ScopedPerKey(t *testing.T) {
	r := NewRegistry(BreakerConfig{FailureThreshold: 1}, nil)
	a := BreakerKey{Component: "ingest", Operation: "generate"}
	b := BreakerKey{Component: "emit", Operation: "generate"}

	assert.Same(t, r.Get(a), r.Get(a))
	assert.NotSame(t, r.Get(a), r.Get(b))

	r.Get(a).RecordFailure()
	assert.Equal(t, CircuitOpen, r.Get(a).State())
	assert.Equal(t, CircuitClosed, r.Get(b).State())

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "emit/generate", stats[0].Key)
	assert.Equal(t, "ingest/generate", stats[1].Key)

	r.Reset()
	assert.Equal(t, CircuitClosed, r.Get(a).State())
}

func TestSchedule(t *testing.T) {
	s := NewSchedule(100*time.Millisecond, 2, 500*time.Millisecond)
	got := []time.Duration{s.Next(), s.Next(), s.Next(), s.Next(), s.Next()}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, got)

	s.Reset()
	assert.Equal(t, 100*time.Millisecond, s.Next())

	immediate := NewSchedule(0, 2, time.Second)
	assert.Equal(t, time.Duration(0), immediate.Next())
	assert.Equal(t, time.Duration(0), immediate.Next())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestParseCapabilities(t *testing.T) {
	caps, err := ParseCapabilities(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultCapabilities(), caps)

	caps, err = ParseCapabilities([]string{"Retry", "rate_limiter"})
	require.NoError(t, err)
	assert.Equal(t, Capabilities{Retry: true, RateLimiter: true}, caps)
	assert.Equal(t, []Capability{CapabilityRetry, CapabilityRateLimiter}, caps.List())

	caps, err = ParseCapabilities([]string{"none"})
	require.NoError(t, err)
	assert.Equal(t, Capabilities{}, caps)
	assert.Equal(t, []Capability{CapabilityNone}, caps.List())

	_, err = ParseCapabilities([]string{"none", "retry"})
	assert.Error(t, err)
	_, err = ParseCapabilities([]string{"mixin"})
	assert.Error(t, err)
}

func TestRateLimitConfig_Limiter(t *testing.T) {
	unlimited := RateLimitConfig{}.Limiter()
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	limited := RateLimitConfig{RequestsPerSecond: 1, Burst: 2}.Limiter()
	assert.True(t, limited.Allow())
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}
