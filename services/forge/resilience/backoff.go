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
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Schedule yields the delay before each successive retry.
//
// Delays grow as base * factor^n capped at max. Jitter is disabled so the
// schedule is reproducible. A zero base means retry immediately.
//
// Thread Safety: Not safe for concurrent use. Each pipeline owns its own.
type Schedule struct {
	base time.Duration
	exp  *backoff.ExponentialBackOff
}

// NewSchedule creates a schedule.
//
// Inputs:
//   - base: First delay. Zero disables waiting.
//   - factor: Growth per retry. Values below 1 are treated as 1.
//   - max: Upper bound per delay. Zero means unbounded.
func NewSchedule(base time.Duration, factor float64, max time.Duration) *Schedule {
	s := &Schedule{base: base}
	if base <= 0 {
		return s
	}
	if factor < 1 {
		factor = 1
	}
	if max <= 0 {
		max = time.Duration(1<<62 - 1)
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = factor
	exp.MaxInterval = max
	exp.RandomizationFactor = 0
	exp.Reset()
	s.exp = exp
	return s
}

// Next returns the delay before the next retry.
func (s *Schedule) Next() time.Duration {
	if s.exp == nil {
		return 0
	}
	return s.exp.NextBackOff()
}

// Reset starts the schedule over.
func (s *Schedule) Reset() {
	if s.exp != nil {
		s.exp.Reset()
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
