// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one job in a batch. Exactly one of Result and
// Err is set.
type Outcome struct {
	Job    Job
	Result *Result
	Err    error
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Accepted int
	Failed   int
}

// Summarize counts accepted and failed outcomes.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Err != nil {
			s.Failed++
		} else {
			s.Accepted++
		}
	}
	return s
}

// errAbort stops the errgroup so its context cancels the siblings.
var errAbort = errors.New("batch aborted after hard failure")

// RunAll runs every job in its own pipeline.
//
// Description:
//
//	Pipelines run concurrently up to Settings.Concurrency and are isolated:
//	one failing never affects the others, unless AbortSiblingsOnFailHard is
//	set, in which case a fail_hard outcome cancels the pipelines still
//	running. Those end with reason canceled.
//
// Inputs:
//
//	ctx - Cancels the whole batch.
//	jobs - The components to generate.
//
// Outputs:
//
//	[]Outcome - One per job, in job order.
func (o *Orchestrator) RunAll(ctx context.Context, jobs []Job) []Outcome {
	settings := o.Settings()
	outcomes := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if settings.Concurrency > 0 {
		g.SetLimit(settings.Concurrency)
	}
	for i, job := range jobs {
		g.Go(func() error {
			res, err := o.Run(gctx, job)
			outcomes[i] = Outcome{Job: job, Result: res, Err: err}

			var perr *PipelineError
			if settings.AbortSiblingsOnFailHard && errors.As(err, &perr) && perr.FailedHard() {
				return errAbort
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
