// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience holds the fault-isolation pieces wrapped around oracle
// calls: circuit breakers keyed per (component, operation), the backoff
// schedule for retries, rate limiting and the capability set that decides
// which of them are active.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call without
// contacting the oracle.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed passes calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probe calls through.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before opening (default: 3).
	FailureThreshold int `yaml:"failure_threshold" validate:"gte=1"`

	// SuccessThreshold is probe successes needed to close again (default: 1).
	SuccessThreshold int `yaml:"success_threshold" validate:"gte=1"`

	// OpenDuration is the cool-down before probing (default: 30s).
	OpenDuration time.Duration `yaml:"open_duration" validate:"gt=0"`

	// HalfOpenMax is concurrent probes allowed when half-open (default: 1).
	HalfOpenMax int `yaml:"half_open_max" validate:"gte=1"`
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenDuration:     30 * time.Second,
		HalfOpenMax:      1,
	}
}

// BreakerStats is a snapshot of a breaker.
type BreakerStats struct {
	Key                 string    `json:"key"`
	State               string    `json:"state"`
	Calls               int64     `json:"calls"`
	Failures            int64     `json:"failures"`
	Rejected            int64     `json:"rejected"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Since               time.Time `json:"since"`
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(key string, from, to CircuitState)

// CircuitBreaker fails fast after repeated infrastructure failures.
//
// Closed passes calls through and counts consecutive failures. At
// FailureThreshold it opens and rejects every call with ErrCircuitOpen
// until OpenDuration has elapsed. It then turns half-open and admits up to
// HalfOpenMax probes: SuccessThreshold probe successes close it, any probe
// failure opens it again.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	key      string
	config   BreakerConfig
	now      func() time.Time
	onChange StateChangeFunc

	mu             sync.Mutex
	state          CircuitState
	failures       int
	successes      int
	since          time.Time
	halfOpenActive int

	calls    int64
	failed   int64
	rejected int64
}

// NewCircuitBreaker creates a closed breaker.
//
// Inputs:
//   - key: Identity used in stats and state-change callbacks.
//   - config: Breaker configuration. Zero fields take defaults.
//   - onChange: Optional transition observer. Called without the lock held.
//
// Outputs:
//   - *CircuitBreaker: Ready to use circuit breaker.
func NewCircuitBreaker(key string, config BreakerConfig, onChange StateChangeFunc) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = def.OpenDuration
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = def.HalfOpenMax
	}
	return &CircuitBreaker{
		key:      key,
		config:   config,
		now:      time.Now,
		onChange: onChange,
		state:    CircuitClosed,
		since:    time.Now(),
	}
}

// Key returns the breaker identity.
func (cb *CircuitBreaker) Key() string { return cb.key }

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow checks if a call should proceed.
//
// Outputs:
//   - bool: True if the call should proceed.
//   - func(): Release to call when a half-open probe completes (may be nil).
func (cb *CircuitBreaker) Allow() (bool, func()) {
	cb.mu.Lock()
	cb.calls++

	var (
		allowed  bool
		release  func()
		probed   bool
		previous = cb.state
	)
	switch cb.state {
	case CircuitClosed:
		allowed = true
	case CircuitOpen:
		if cb.now().Sub(cb.since) >= cb.config.OpenDuration {
			cb.transitionTo(CircuitHalfOpen)
			probed = true
			allowed, release = cb.tryHalfOpen()
		} else {
			cb.rejected++
		}
	case CircuitHalfOpen:
		allowed, release = cb.tryHalfOpen()
	}
	cb.mu.Unlock()

	if probed {
		cb.notify(previous, CircuitHalfOpen)
	}
	return allowed, release
}

// tryHalfOpen admits a probe if capacity remains. Must be called with lock held.
func (cb *CircuitBreaker) tryHalfOpen() (bool, func()) {
	if cb.halfOpenActive >= cb.config.HalfOpenMax {
		cb.rejected++
		return false, nil
	}
	cb.halfOpenActive++
	var once sync.Once
	return true, func() {
		once.Do(func() {
			cb.mu.Lock()
			if cb.halfOpenActive > 0 {
				cb.halfOpenActive--
			}
			cb.mu.Unlock()
		})
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.failures = 0
	from := cb.state
	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failed++
	cb.failures++
	cb.successes = 0
	from := cb.state
	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// transitionTo changes state. Must be called with lock held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	cb.state = newState
	cb.since = cb.now()
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.onChange != nil {
		cb.onChange(cb.key, from, to)
	}
}

// Stats returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Key:                 cb.key,
		State:               cb.state.String(),
		Calls:               cb.calls,
		Failures:            cb.failed,
		Rejected:            cb.rejected,
		ConsecutiveFailures: cb.failures,
		Since:               cb.since,
	}
}

// Reset returns the breaker to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenActive = 0
	cb.since = cb.now()
	cb.mu.Unlock()

	if from != CircuitClosed {
		cb.notify(from, CircuitClosed)
	}
}
