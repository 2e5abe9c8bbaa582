// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the forge pipeline over HTTP.
//
// Routes:
//
//	POST /v1/forge/validate        validate text against a shape, no oracle
//	POST /v1/forge/generate        run one job through the orchestrator
//	GET  /v1/forge/artifacts       list accepted artifacts
//	GET  /v1/forge/artifacts/:id   fetch one accepted artifact
//	GET  /v1/forge/breakers        circuit breaker states
//	GET  /metrics                  Prometheus metrics
//	GET  /health                   liveness
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
	"github.com/AleutianAI/AleutianForge/services/forge/gate"
	"github.com/AleutianAI/AleutianForge/services/forge/orchestrator"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/store"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Handlers holds the dependencies of the HTTP handlers.
//
// Orchestrator and Store may be nil; the routes that need them then answer
// 503.
type Handlers struct {
	Validator    *validate.Validator
	Quality      validate.QualityConfig
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Breakers     *resilience.Registry
	Logger       *slog.Logger
}

// ValidateRequest is the body of POST /v1/forge/validate.
type ValidateRequest struct {
	Text  string         `json:"text" binding:"required"`
	Shape validate.Shape `json:"shape"`
}

// QualityReport is the informational quality summary of a candidate.
type QualityReport struct {
	Score   int              `json:"score"`
	Metrics validate.Metrics `json:"metrics"`
}

// ValidateResponse is the body returned by POST /v1/forge/validate.
type ValidateResponse struct {
	SHA256  string              `json:"sha256"`
	Issues  []validate.Issue    `json:"issues"`
	Counts  gate.SeverityCounts `json:"counts"`
	Verdict gate.Verdict        `json:"verdict"`
	Quality QualityReport       `json:"quality"`
}

// GenerateRequest is the body of POST /v1/forge/generate.
type GenerateRequest struct {
	ComponentID string         `json:"component_id" binding:"required"`
	Operation   string         `json:"operation"`
	Prompt      string         `json:"prompt" binding:"required"`
	Shape       validate.Shape `json:"shape"`
}

// FailureResponse is returned when a pipeline fails.
type FailureResponse struct {
	Error  string                      `json:"error"`
	Detail *orchestrator.PipelineError `json:"failure"`
	Report string                      `json:"report"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// HealthCheck answers liveness probes and lists the active detectors.
func (h *Handlers) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.Validator != nil {
		body["detectors"] = h.Validator.Detectors()
	}
	c.JSON(http.StatusOK, body)
}

// Validate runs the detectors and the gate over submitted text. The
// thresholds are the orchestrator's current ones, or the defaults when no
// orchestrator is configured.
func (h *Handlers) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	thresholds := gate.DefaultThresholds()
	if h.Orchestrator != nil {
		thresholds = h.Orchestrator.Settings().Thresholds
	}

	a := artifact.FromOracle(req.Text)
	issues := h.Validator.Validate(a, req.Shape)
	if issues == nil {
		issues = []validate.Issue{}
	}
	verdict := gate.Evaluate(issues, thresholds)
	metrics := validate.Measure(a)

	trace.SpanFromContext(c.Request.Context()).SetAttributes(
		attribute.Int("issues", len(issues)),
		attribute.Bool("passed", verdict.Passed),
	)
	c.JSON(http.StatusOK, ValidateResponse{
		SHA256:  a.Hash(),
		Issues:  issues,
		Counts:  gate.Count(issues, true),
		Verdict: verdict,
		Quality: QualityReport{Score: metrics.Score(h.Quality), Metrics: metrics},
	})
}

// Generate runs one job to completion. An accepted artifact answers 200;
// a failed pipeline answers 422 with its report, or 400 when the job itself
// was invalid.
func (h *Handlers) Generate(c *gin.Context) {
	if h.Orchestrator == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "generation is not configured"})
		return
	}
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	res, err := h.Orchestrator.Run(c.Request.Context(), orchestrator.Job{
		ComponentID: req.ComponentID,
		Operation:   req.Operation,
		Prompt:      req.Prompt,
		Shape:       req.Shape,
	})
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}

	var perr *orchestrator.PipelineError
	if !errors.As(err, &perr) {
		h.logger().Error("Generate failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	status := http.StatusUnprocessableEntity
	if perr.Reason == orchestrator.ReasonInvalidJob {
		status = http.StatusBadRequest
	}
	c.JSON(status, FailureResponse{Error: perr.Error(), Detail: perr, Report: perr.Report()})
}

// ListArtifacts returns every accepted artifact.
func (h *Handlers) ListArtifacts(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage is not configured"})
		return
	}
	records, err := h.Store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": records})
}

// GetArtifact returns one accepted artifact by component id.
func (h *Handlers) GetArtifact(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage is not configured"})
		return
	}
	rec, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusOK, rec)
	}
}

// BreakerStats returns a snapshot of every circuit breaker.
func (h *Handlers) BreakerStats(c *gin.Context) {
	if h.Breakers == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "circuit breakers are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakers": h.Breakers.Stats()})
}

// ResetBreakers closes every circuit breaker and returns the new snapshot.
func (h *Handlers) ResetBreakers(c *gin.Context) {
	if h.Breakers == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "circuit breakers are not configured"})
		return
	}
	h.Breakers.Reset()
	h.logger().Info("Circuit breakers reset")
	c.JSON(http.StatusOK, gin.H{"breakers": h.Breakers.Stats()})
}
