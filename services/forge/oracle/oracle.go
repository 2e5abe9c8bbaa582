// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle defines the source of candidate source text and the
// adapters that talk to concrete model endpoints.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aleutian.forge.oracle")

// Oracle produces candidate source text for a prompt.
//
// feedback is empty on the first attempt. On later attempts it carries the
// rendered issues from the previous attempt and must be incorporated into
// the request.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Oracle interface {
	Request(ctx context.Context, prompt, feedback string) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, prompt, feedback string) (string, error)

// Request calls f.
func (f Func) Request(ctx context.Context, prompt, feedback string) (string, error) {
	return f(ctx, prompt, feedback)
}

// ErrMalformedResponse is returned when the endpoint answered but the
// answer holds no usable text.
var ErrMalformedResponse = errors.New("malformed oracle response")

// ErrEmptyPrompt is returned for requests without a prompt.
var ErrEmptyPrompt = errors.New("empty prompt")

// Error is a transport level failure talking to an oracle endpoint. It is
// always classified as an infrastructure failure.
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

const feedbackHeader = "The previous attempt was rejected. Fix every issue below and return the complete corrected source."

// ComposePrompt appends retry feedback to the original prompt.
func ComposePrompt(prompt, feedback string) string {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return prompt
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(prompt, "\n"))
	b.WriteString("\n\n")
	b.WriteString(feedbackHeader)
	b.WriteString("\n")
	b.WriteString(feedback)
	b.WriteString("\n")
	return b.String()
}

// ErrMisconfigured marks failures caused by local setup rather than the
// endpoint, such as a missing replay file or credential. These are never
// retried.
var ErrMisconfigured = errors.New("oracle misconfigured")
