// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	// Provider names the endpoint in errors and spans.
	Provider string

	Capabilities resilience.Capabilities
	RateLimit    resilience.RateLimitConfig

	// Breakers is shared by every pipeline using the same endpoint. A nil
	// registry gets one with default settings.
	Breakers *resilience.Registry

	// Timeout bounds each request. Zero disables it.
	Timeout time.Duration
}

// Query is one guarded oracle request.
type Query struct {
	// Key scopes the circuit breaker to the caller.
	Key resilience.BreakerKey

	Prompt string

	// Feedback holds rendered issues from the previous attempt, or "".
	Feedback string

	// SkipBreaker sends the request without consulting or updating the
	// breaker, even when the capability is enabled.
	SkipBreaker bool
}

// Guard applies the configured capabilities around an Oracle: the rate
// limiter first, then the circuit breaker for the caller's key, then the
// per-request timeout.
//
// Thread Safety: Safe for concurrent use.
type Guard struct {
	oracle   Oracle
	provider string
	caps     resilience.Capabilities
	limiter  *rate.Limiter
	breakers *resilience.Registry
	timeout  time.Duration
}

// NewGuard wraps o.
func NewGuard(o Oracle, cfg GuardConfig) *Guard {
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.DefaultBreakerConfig(), nil)
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "oracle"
	}
	return &Guard{
		oracle:   o,
		provider: provider,
		caps:     cfg.Capabilities,
		limiter:  cfg.RateLimit.Limiter(),
		breakers: breakers,
		timeout:  cfg.Timeout,
	}
}

// Capabilities returns the capability set fixed at construction.
func (g *Guard) Capabilities() resilience.Capabilities { return g.caps }

// Breakers returns the breaker registry.
func (g *Guard) Breakers() *resilience.Registry { return g.breakers }

// Request asks the oracle for candidate text on behalf of q.Key.
//
// Description:
//
//	Parent cancellation is returned as the bare context error and never
//	counts against the breaker. Local misconfiguration is returned as is
//	and does not count either. Every other failure, including an empty
//	response, is returned as *Error and recorded as a breaker failure.
//
// Inputs:
//
//	ctx - Parent context.
//	q - Breaker key, prompt and feedback.
//
// Outputs:
//
//	string - Raw oracle response.
//	error - Context error, ErrCircuitOpen, ErrMisconfigured or *Error.
func (g *Guard) Request(ctx context.Context, q Query) (string, error) {
	key := q.Key
	ctx, span := tracer.Start(ctx, "Guard.Request")
	defer span.End()
	span.SetAttributes(
		attribute.String("component", key.Component),
		attribute.String("operation", key.Operation),
		attribute.String("provider", g.provider),
	)

	if strings.TrimSpace(q.Prompt) == "" {
		return "", fmt.Errorf("%w: %w", ErrMisconfigured, ErrEmptyPrompt)
	}

	if g.caps.RateLimiter {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &Error{Provider: g.provider, Op: "rate limit", Err: err}
		}
	}

	var breaker *resilience.CircuitBreaker
	if g.caps.CircuitBreaker && !q.SkipBreaker {
		breaker = g.breakers.Get(key)
		allowed, release := breaker.Allow()
		if !allowed {
			span.SetStatus(codes.Error, "circuit open")
			return "", fmt.Errorf("%s: %w", key, resilience.ErrCircuitOpen)
		}
		if release != nil {
			defer release()
		}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.oracle.Request(callCtx, q.Prompt, q.Feedback)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrMalformedResponse
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ErrMisconfigured) {
			return "", err
		}
		if breaker != nil {
			breaker.RecordFailure()
		}
		var oracleErr *Error
		if !errors.As(err, &oracleErr) {
			oracleErr = &Error{Provider: g.provider, Op: "request", Err: err}
			err = oracleErr
		}
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("timeout", oracleErr.Timeout()))
		span.SetStatus(codes.Error, "oracle request failed")
		return "", err
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	return text, nil
}
