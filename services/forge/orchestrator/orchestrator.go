// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives the bounded generate, validate, repair and
// retry loop for each component.
//
// # State Machine
//
// Each pipeline moves through Requesting, Validating, an optional
// Repairing step, and Gating. A passing gate accepts the candidate. A
// failing gate or oracle error is classified and the policy table decides
// between another attempt with feedback and a terminal failure.
//
// # Thread Safety
//
// An Orchestrator is safe for concurrent use. Pipelines share only the
// read-only settings snapshot, the oracle guard and the event sink.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
	"github.com/AleutianAI/AleutianForge/services/forge/classify"
	"github.com/AleutianAI/AleutianForge/services/forge/events"
	"github.com/AleutianAI/AleutianForge/services/forge/gate"
	"github.com/AleutianAI/AleutianForge/services/forge/oracle"
	"github.com/AleutianAI/AleutianForge/services/forge/policy"
	"github.com/AleutianAI/AleutianForge/services/forge/repair"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/store"
	"github.com/AleutianAI/AleutianForge/services/forge/telemetry"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

var tracer = otel.Tracer("aleutian.forge.orchestrator")

// Requester is the guarded oracle a pipeline talks to.
type Requester interface {
	Request(ctx context.Context, q oracle.Query) (string, error)
	Capabilities() resilience.Capabilities
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidator replaces the default validator.
func WithValidator(v *validate.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithEvents sets the event sink.
func WithEvents(sink events.Sink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithArtifactSink sets where accepted artifacts are handed off.
func WithArtifactSink(sink store.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings.Store(ptr(s.withDefaults())) }
}

// WithSleep replaces the backoff wait. Tests use it to skip real delays.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

func ptr[T any](v T) *T { return &v }

// Orchestrator runs pipelines.
type Orchestrator struct {
	oracle    Requester
	caps      resilience.Capabilities
	validator *validate.Validator
	events    events.Sink
	sink      store.Sink
	logger    *slog.Logger
	sleep     func(context.Context, time.Duration) error
	settings  atomic.Pointer[Settings]
}

// New creates an Orchestrator. The capability set is taken from the
// requester once and never changes.
func New(r Requester, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		oracle:    r,
		caps:      r.Capabilities(),
		validator: validate.NewValidator(),
		events:    events.Discard{},
		logger:    slog.Default(),
		sleep:     resilience.Sleep,
	}
	o.settings.Store(ptr(DefaultSettings()))
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Settings returns the current settings snapshot.
func (o *Orchestrator) Settings() Settings {
	return *o.settings.Load()
}

// UpdateSettings swaps the settings used by pipelines started from now on.
// Running pipelines keep their snapshot.
func (o *Orchestrator) UpdateSettings(s Settings) {
	o.settings.Store(ptr(s.withDefaults()))
}

// pipeline is the mutable state of one Run. It is never shared.
type pipeline struct {
	job       Job
	op        string
	key       resilience.BreakerKey
	settings  Settings
	attempts  []Attempt
	retries   map[classify.Kind]int
	schedules map[classify.Kind]*resilience.Schedule
	logger    *slog.Logger
}

// Run drives one job to an accepted artifact or a terminal failure.
//
// Description:
//
//	Attempts are strictly sequential. The oracle call is the only blocking
//	step. Feedback for the next attempt is built from the violating issues
//	of the last one; infrastructure retries resend the previous feedback.
//	Parent cancellation ends the pipeline with reason canceled and is never
//	retried.
//
// Inputs:
//
//	ctx - Cancels the pipeline.
//	job - The component to generate.
//
// Outputs:
//
//	*Result - The accepted artifact and its attempt history.
//	error - *PipelineError on terminal failure.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Result, error) {
	p := &pipeline{
		job:       job,
		op:        job.operation(),
		settings:  o.Settings(),
		retries:   make(map[classify.Kind]int),
		schedules: make(map[classify.Kind]*resilience.Schedule),
	}
	p.key = resilience.BreakerKey{Component: job.ComponentID, Operation: p.op}
	p.logger = o.logger.With(slog.String("component", job.ComponentID), slog.String("operation", p.op))

	ctx, span := tracer.Start(ctx, "Orchestrator.Run", trace.WithAttributes(
		attribute.String("component", job.ComponentID),
		attribute.String("operation", p.op),
	))
	defer span.End()
	p.logger = telemetry.LoggerWithTrace(ctx, p.logger)

	if err := checkJob(job); err != nil {
		fc := classify.Classify(job.ComponentID, p.op, nil, &classify.ConfigurationError{Resource: "job", Err: err})
		return nil, o.fail(ctx, span, p, fc, policy.ActionFailHard, ReasonInvalidJob)
	}

	feedback := ""
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return nil, o.canceled(ctx, span, p, ctx.Err())
		}

		att := Attempt{Number: n, Feedback: feedback, Started: time.Now()}
		o.emit(ctx, p, events.AttemptStarted, func(e *events.Event) { e.Attempt = n })

		accepted, fc := o.attempt(ctx, p, &att)
		if accepted {
			o.finish(ctx, p, &att, events.OutcomeAccepted)
			return o.accept(ctx, span, p)
		}
		if fc.Err != nil && ctx.Err() != nil {
			o.finish(ctx, p, &att, events.OutcomeCanceled)
			return nil, o.canceled(ctx, span, p, ctx.Err())
		}

		pol := p.settings.Policies.Decide(fc)
		action := pol.Action
		if fc.Kind == classify.KindInfrastructure && !o.caps.Retry {
			action = policy.ActionFailSoft
		}
		att.Failure = &fc
		att.Action = action

		reason := ReasonPolicy
		if action == policy.ActionRetry {
			switch {
			case !pol.Retries(p.retries[fc.Kind]):
				reason = ReasonRetriesExhausted
			case n >= p.settings.MaxAttempts:
				reason = ReasonMaxAttempts
			default:
				p.retries[fc.Kind]++
				o.finish(ctx, p, &att, events.OutcomeRetry)
				if fc.Kind != classify.KindInfrastructure {
					feedback = retryFeedback(fc)
				}
				delay := p.schedule(fc.Kind, pol).Next()
				p.logger.Info("Retrying component",
					slog.Int("attempt", n),
					slog.String("kind", string(fc.Kind)),
					slog.Int("retry", p.retries[fc.Kind]),
					slog.Duration("delay", delay),
				)
				if err := o.sleep(ctx, delay); err != nil {
					return nil, o.canceled(ctx, span, p, err)
				}
				continue
			}
		}

		if action == policy.ActionRetry {
			action = exhausted(fc.Kind)
			att.Action = action
		}
		o.finish(ctx, p, &att, events.OutcomeFailed)
		return nil, o.fail(ctx, span, p, fc, action, reason)
	}
}

// attempt runs Requesting through Gating. It returns true when the
// candidate was accepted; otherwise the classified failure.
func (o *Orchestrator) attempt(ctx context.Context, p *pipeline, att *Attempt) (bool, classify.FailureContext) {
	ctx, span := tracer.Start(ctx, "Orchestrator.attempt", trace.WithAttributes(attribute.Int("attempt", att.Number)))
	defer span.End()

	text, err := o.oracle.Request(ctx, oracle.Query{
		Key:         p.key,
		Prompt:      p.job.Prompt,
		Feedback:    att.Feedback,
		SkipBreaker: !p.settings.Policies.For(classify.KindInfrastructure).CircuitBreakerEnabled,
	})
	if err != nil {
		att.Err = err
		att.Error = err.Error()
		span.RecordError(err)
		return false, classify.Classify(p.job.ComponentID, p.op, nil, err)
	}

	a := artifact.FromOracle(text)
	att.Artifact = a
	att.SHA256 = a.Hash()
	issues := o.validate(ctx, p, att, a)

	// Insecure literals never reach repair or the gate.
	if validate.HasKind(issues, validate.KindInsecureLiteral) {
		return false, classify.Classify(p.job.ComponentID, p.op, issues, nil)
	}

	verdict := gate.Evaluate(issues, p.settings.Thresholds)
	att.Verdict = &verdict

	if candidates := repairCandidates(issues, verdict, p.settings.Thresholds); validate.AllRepairable(candidates) {
		res := repair.Repair(a, p.job.Shape, candidates)
		switch {
		case res.Applied:
			att.RepairApplied = true
			o.emit(ctx, p, events.RepairApplied, func(e *events.Event) {
				e.Attempt = att.Number
				e.Detail = strings.Join(res.Plan.Names(), ",")
			})
			a = res.Artifact
			issues = o.validate(ctx, p, att, a)
			verdict = gate.Evaluate(issues, p.settings.Thresholds)
			att.Verdict = &verdict
		case res.Plan != nil || res.Discarded != "":
			att.RepairDiscarded = res.Discarded
			o.emit(ctx, p, events.RepairDiscarded, func(e *events.Event) {
				e.Attempt = att.Number
				e.Detail = res.Discarded
			})
		}
	}

	att.Artifact = a
	att.SHA256 = a.Hash()
	if verdict.Passed {
		return true, classify.FailureContext{}
	}
	return false, classify.Classify(p.job.ComponentID, p.op, verdict.Violating, nil)
}

// repairCandidates returns the issues repair may act on: the violating
// issues of a failed verdict, or every gated issue of a passing one.
func repairCandidates(issues []validate.Issue, verdict gate.Verdict, t gate.Thresholds) []validate.Issue {
	if !verdict.Passed {
		return verdict.Violating
	}
	var gated []validate.Issue
	for _, issue := range issues {
		if !issue.Informational || t.IncludeInformational {
			gated = append(gated, issue)
		}
	}
	return gated
}

func (o *Orchestrator) validate(ctx context.Context, p *pipeline, att *Attempt, a *artifact.Artifact) []validate.Issue {
	issues := o.validator.Validate(a, p.job.Shape)
	att.Issues = issues
	for i := range issues {
		issue := issues[i]
		o.emit(ctx, p, events.IssueFound, func(e *events.Event) {
			e.Attempt = att.Number
			e.Issue = &issue
		})
	}
	return issues
}

func (o *Orchestrator) finish(ctx context.Context, p *pipeline, att *Attempt, outcome string) {
	att.Duration = time.Since(att.Started)
	att.Outcome = outcome
	p.attempts = append(p.attempts, *att)
	o.emit(ctx, p, events.AttemptFinished, func(e *events.Event) {
		e.Attempt = att.Number
		e.Duration = att.Duration
		e.Outcome = outcome
		if att.Failure != nil {
			e.Kind = string(att.Failure.Kind)
			e.Action = string(att.Action)
		}
	})
}

func (o *Orchestrator) accept(ctx context.Context, span trace.Span, p *pipeline) (*Result, error) {
	last := p.attempts[len(p.attempts)-1]
	res := &Result{
		ComponentID: p.job.ComponentID,
		Operation:   p.op,
		Artifact:    last.Artifact,
		Text:        last.Artifact.Text(),
		SHA256:      last.Artifact.Hash(),
		Repaired:    last.RepairApplied,
		Attempts:    p.attempts,
	}

	if o.sink != nil {
		err := o.sink.Put(ctx, store.Record{
			ComponentID: res.ComponentID,
			Operation:   res.Operation,
			Text:        res.Text,
			SHA256:      res.SHA256,
			Attempts:    len(res.Attempts),
			Repaired:    res.Repaired,
			AcceptedAt:  time.Now().UTC(),
		})
		if err != nil {
			fc := classify.Classify(p.job.ComponentID, p.op, nil, fmt.Errorf("persist accepted artifact: %w", err))
			return nil, o.fail(ctx, span, p, fc, policy.ActionFailSoft, ReasonPersist)
		}
	}

	o.emit(ctx, p, events.ArtifactAccepted, func(e *events.Event) {
		e.Attempts = len(res.Attempts)
		e.Outcome = events.OutcomeAccepted
	})
	span.SetAttributes(attribute.Int("attempts", len(res.Attempts)), attribute.Bool("repaired", res.Repaired))
	span.SetStatus(codes.Ok, "accepted")
	p.logger.Info("Component accepted",
		slog.Int("attempts", len(res.Attempts)),
		slog.Bool("repaired", res.Repaired),
		slog.String("sha256", res.SHA256),
	)
	return res, nil
}

func (o *Orchestrator) canceled(ctx context.Context, span trace.Span, p *pipeline, cause error) error {
	fc := classify.FailureContext{
		Kind:        classify.KindInfrastructure,
		Severity:    validate.SeverityHigh,
		ComponentID: p.job.ComponentID,
		Operation:   p.op,
		Message:     "pipeline canceled: " + cause.Error(),
		Err:         cause,
	}
	return o.fail(ctx, span, p, fc, policy.ActionFailSoft, ReasonCanceled)
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, p *pipeline, fc classify.FailureContext, action policy.Action, reason string) error {
	perr := &PipelineError{
		ComponentID: p.job.ComponentID,
		Operation:   p.op,
		Failure:     fc,
		Action:      action,
		Reason:      reason,
		Attempts:    p.attempts,
	}
	// Terminal events are emitted even when ctx is already canceled.
	o.emit(context.WithoutCancel(ctx), p, events.ArtifactFailed, func(e *events.Event) {
		e.Kind = string(fc.Kind)
		e.Action = string(action)
		e.Detail = reason + ": " + fc.Message
		e.Attempts = len(p.attempts)
		e.Outcome = events.OutcomeFailed
	})
	span.RecordError(perr)
	span.SetStatus(codes.Error, string(fc.Kind))
	p.logger.Warn("Component failed",
		slog.String("kind", string(fc.Kind)),
		slog.String("action", string(action)),
		slog.String("reason", reason),
		slog.Int("attempts", len(p.attempts)),
		slog.String("message", fc.Message),
	)
	return perr
}

func (o *Orchestrator) emit(ctx context.Context, p *pipeline, t events.Type, fill func(*events.Event)) {
	e := events.New(t, p.job.ComponentID, p.op)
	if fill != nil {
		fill(&e)
	}
	o.events.Emit(ctx, e)
}

// exhausted is the terminal action once a retry budget is spent. Syntax and
// structural failures escalate to fail_hard; anything else fails soft.
func exhausted(kind classify.Kind) policy.Action {
	switch kind {
	case classify.KindSyntax, classify.KindStructural:
		return policy.ActionFailHard
	}
	return policy.ActionFailSoft
}

func (p *pipeline) schedule(kind classify.Kind, pol policy.FailurePolicy) *resilience.Schedule {
	s, ok := p.schedules[kind]
	if !ok {
		s = pol.Schedule()
		p.schedules[kind] = s
	}
	return s
}

// retryFeedback renders the next attempt's feedback. Syntax failures carry
// the parse error text.
func retryFeedback(fc classify.FailureContext) string {
	if len(fc.RawIssues) == 0 {
		return fc.Message
	}
	return Feedback(fc.RawIssues)
}

func checkJob(job Job) error {
	var missing []string
	if strings.TrimSpace(job.ComponentID) == "" {
		missing = append(missing, "component id")
	}
	if strings.TrimSpace(job.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: job is missing %s", ErrInvalidJob, strings.Join(missing, " and "))
	}
	return nil
}

// ErrInvalidJob is the cause of a PipelineError for a malformed job.
var ErrInvalidJob = errors.New("invalid job")
