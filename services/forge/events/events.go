// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events carries pipeline lifecycle events to logging and metrics.
//
// Pipelines only ever append events. Sinks must be safe for concurrent use
// because every pipeline in a batch emits into the same sink.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Type names an event.
type Type string

const (
	AttemptStarted   Type = "attempt_started"
	AttemptFinished  Type = "attempt_finished"
	IssueFound       Type = "issue_found"
	RepairApplied    Type = "repair_applied"
	RepairDiscarded  Type = "repair_discarded"
	ArtifactAccepted Type = "artifact_accepted"
	ArtifactFailed   Type = "artifact_failed"
	BreakerChanged   Type = "breaker_changed"
)

// Attempt outcomes carried by AttemptFinished.
const (
	OutcomeAccepted = "accepted"
	OutcomeRetry    = "retry"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Event is one pipeline occurrence.
type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Time        time.Time       `json:"time"`
	RunID       string          `json:"run_id,omitempty"`
	ComponentID string          `json:"component_id,omitempty"`
	Operation   string          `json:"operation,omitempty"`
	Attempt     int             `json:"attempt,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty"`
	Outcome     string          `json:"outcome,omitempty"`
	Issue       *validate.Issue `json:"issue,omitempty"`

	// Kind and Action describe the classified failure, when there is one.
	Kind   string `json:"kind,omitempty"`
	Action string `json:"action,omitempty"`

	// Detail is free text such as a repair discard reason or breaker
	// transition.
	Detail string `json:"detail,omitempty"`

	// Attempts is the total attempt count on terminal events.
	Attempts int `json:"attempts,omitempty"`
}

// New creates an event stamped with a fresh ID and the current time.
func New(t Type, componentID, operation string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		Time:        time.Now().UTC(),
		ComponentID: componentID,
		Operation:   operation,
	}
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Discard drops every event.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(context.Context, Event) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// Tagged stamps RunID on every event that lacks one before forwarding it.
type Tagged struct {
	RunID string
	Next  Sink
}

// Emit implements Sink.
func (t Tagged) Emit(ctx context.Context, e Event) {
	if e.RunID == "" {
		e.RunID = t.RunID
	}
	if t.Next != nil {
		t.Next.Emit(ctx, e)
	}
}

// LogSink writes events as structured log records.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, e Event) {
	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
		slog.String("component", e.ComponentID),
		slog.String("operation", e.Operation),
	}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", e.Attempt))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", e.Duration))
	}
	if e.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", e.Outcome))
	}
	if e.Issue != nil {
		attrs = append(attrs,
			slog.String("issue_kind", string(e.Issue.Kind)),
			slog.String("severity", string(e.Issue.Severity)),
			slog.String("location", e.Issue.Location()),
			slog.String("message", e.Issue.Message),
		)
	}
	if e.Kind != "" {
		attrs = append(attrs, slog.String("failure_kind", e.Kind), slog.String("action", e.Action))
	}
	if e.Detail != "" {
		attrs = append(attrs, slog.String("detail", e.Detail))
	}
	if e.Attempts > 0 {
		attrs = append(attrs, slog.Int("attempts", e.Attempts))
	}

	level := slog.LevelDebug
	switch e.Type {
	case ArtifactAccepted, RepairApplied, BreakerChanged:
		level = slog.LevelInfo
	case ArtifactFailed, RepairDiscarded:
		level = slog.LevelWarn
	}
	s.Logger.LogAttrs(ctx, level, "forge event", attrs...)
}

// Recorder keeps every event in memory.
//
// Thread Safety: Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// For returns the recorded events for one component, in order.
func (r *Recorder) For(componentID string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.ComponentID == componentID {
			out = append(out, e)
		}
	}
	return out
}
