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
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// Capability names one protection applied around oracle calls.
type Capability string

const (
	CapabilityRetry          Capability = "retry"
	CapabilityCircuitBreaker Capability = "circuit_breaker"
	CapabilityRateLimiter    Capability = "rate_limiter"
	CapabilityNone           Capability = "none"
)

// Capabilities is the resolved capability set. It is fixed when a pipeline
// runner is constructed and never changes afterwards.
type Capabilities struct {
	// Retry lets infrastructure failures follow their retry policy.
	// Without it they fail soft on the first occurrence.
	Retry bool

	// CircuitBreaker guards oracle calls with per-key breakers.
	CircuitBreaker bool

	// RateLimiter throttles calls to the oracle endpoint.
	RateLimiter bool
}

// DefaultCapabilities enables retry and circuit breaking.
func DefaultCapabilities() Capabilities {
	return Capabilities{Retry: true, CircuitBreaker: true}
}

// ParseCapabilities resolves configured capability names. "none" must
// appear alone. An empty list yields the defaults.
func ParseCapabilities(names []string) (Capabilities, error) {
	if len(names) == 0 {
		return DefaultCapabilities(), nil
	}
	var caps Capabilities
	sawNone := false
	for _, raw := range names {
		switch Capability(strings.ToLower(strings.TrimSpace(raw))) {
		case CapabilityRetry:
			caps.Retry = true
		case CapabilityCircuitBreaker:
			caps.CircuitBreaker = true
		case CapabilityRateLimiter:
			caps.RateLimiter = true
		case CapabilityNone:
			sawNone = true
		default:
			return Capabilities{}, fmt.Errorf("unknown capability %q", raw)
		}
	}
	if sawNone && len(names) > 1 {
		return Capabilities{}, fmt.Errorf("capability %q cannot be combined with others", CapabilityNone)
	}
	return caps, nil
}

// List returns the enabled capabilities, or [none].
func (c Capabilities) List() []Capability {
	var out []Capability
	if c.Retry {
		out = append(out, CapabilityRetry)
	}
	if c.CircuitBreaker {
		out = append(out, CapabilityCircuitBreaker)
	}
	if c.RateLimiter {
		out = append(out, CapabilityRateLimiter)
	}
	if len(out) == 0 {
		out = append(out, CapabilityNone)
	}
	return out
}

// RateLimitConfig configures the oracle endpoint token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// DefaultRateLimitConfig allows two requests per second with no burst.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 2, Burst: 1}
}

// Limiter builds the token bucket. A non-positive rate means unlimited.
func (c RateLimitConfig) Limiter() *rate.Limiter {
	if c.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := c.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
}
