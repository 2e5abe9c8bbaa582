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
	"sync"
	"time"
)

// Step is one scripted oracle answer.
type Step struct {
	Text  string
	Err   error
	Delay time.Duration
}

// Call records one request made to a Scripted oracle.
type Call struct {
	Prompt   string
	Feedback string
}

// Scripted replays a fixed sequence of answers. Once the script is
// exhausted the last step repeats. It is meant for tests and dry runs.
//
// Thread Safety: Safe for concurrent use.
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// NewScripted creates a scripted oracle.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Texts is shorthand for a script of successful answers.
func Texts(texts ...string) *Scripted {
	steps := make([]Step, len(texts))
	for i, t := range texts {
		steps[i] = Step{Text: t}
	}
	return NewScripted(steps...)
}

// Request implements Oracle.
func (s *Scripted) Request(ctx context.Context, prompt, feedback string) (string, error) {
	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, Call{Prompt: prompt, Feedback: feedback})
	var step Step
	if len(s.steps) > 0 {
		if idx >= len(s.steps) {
			idx = len(s.steps) - 1
		}
		step = s.steps[idx]
	}
	s.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return step.Text, step.Err
}

// Calls returns a copy of the recorded requests.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
