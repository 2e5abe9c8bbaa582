// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForge/services/forge/events"
	"github.com/AleutianAI/AleutianForge/services/forge/oracle"
	"github.com/AleutianAI/AleutianForge/services/forge/orchestrator"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/store"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const workerSource = `class Worker(Component):
    """Moves records."""

    def init(self, config):
        """Store configuration."""
        self.config = config

    async def process(self, item):
        """Handle one item."""
        try:
            return await self.config.handle(item)
        except ValueError:
            return None
`

var workerShape = validate.Shape{
	RequiredBase:      "Component",
	RequiredMethods:   []string{"init", "process"},
	SuspendingMethods: []string{"process"},
}

type fixture struct {
	router *gin.Engine
	store  *store.Memory
	oracle *oracle.Scripted
	reg    *prometheus.Registry

	breakers *resilience.Registry
}

func newFixture(t *testing.T, answers ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemory(),
		oracle: oracle.Texts(answers...),
		reg:    prometheus.NewRegistry(),
	}
	metrics := events.NewMetrics(f.reg)
	breakers := resilience.NewRegistry(resilience.DefaultBreakerConfig(), nil)
	f.breakers = breakers
	guard := oracle.NewGuard(f.oracle, oracle.GuardConfig{Provider: "test", Capabilities: resilience.DefaultCapabilities(), Breakers: breakers})
	orch := orchestrator.New(guard,
		orchestrator.WithEvents(metrics),
		orchestrator.WithArtifactSink(f.store),
		orchestrator.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	f.router = NewRouter(&Handlers{
		Validator:    validate.NewValidator(),
		Quality:      validate.DefaultQualityConfig(),
		Orchestrator: orch,
		Store:        f.store,
		Breakers:     breakers,
	}, f.reg)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","detectors":["placeholder","shape","secrets","quality"]}`, w.Body.String())
}

func TestValidate_CleanSource(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/forge/validate", ValidateRequest{Text: workerSource, Shape: workerShape})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Verdict.Passed)
	assert.NotEmpty(t, resp.SHA256)
	assert.Equal(t, 100, resp.Quality.Score)
	assert.Len(t, resp.Quality.Metrics.Functions, 2)
	for _, issue := range resp.Issues {
		assert.True(t, issue.Informational, issue.String())
	}
}

func TestValidate_ReportsViolations(t *testing.T) {
	f := newFixture(t)
	src := "class Worker(Component):\n    password = \"abc123xyz\"\n"
	w := f.do(t, http.MethodPost, "/v1/forge/validate", ValidateRequest{Text: src, Shape: workerShape})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Verdict.Passed)
	assert.True(t, validate.HasKind(resp.Issues, validate.KindInsecureLiteral))
	assert.NotContains(t, w.Body.String(), "abc123xyz")
}

func TestValidate_SyntaxError(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/forge/validate", ValidateRequest{Text: "def broken(:\n", Shape: workerShape})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, validate.KindSyntaxError, resp.Issues[0].Kind)
	assert.Equal(t, 1, resp.Counts[validate.SeverityCritical])
}

func TestValidate_RequiresText(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/forge/validate", map[string]any{"shape": workerShape})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate_Accepted(t *testing.T) {
	f := newFixture(t, workerSource)
	w := f.do(t, http.MethodPost, "/v1/forge/generate", GenerateRequest{ComponentID: "worker", Prompt: "Write it.", Shape: workerShape})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "worker", res.ComponentID)
	assert.Equal(t, workerSource, res.Text)
	assert.Len(t, res.Attempts, 1)

	w = f.do(t, http.MethodGet, "/v1/forge/artifacts/worker", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec store.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, res.SHA256, rec.SHA256)

	w = f.do(t, http.MethodGet, "/v1/forge/artifacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"component_id":"worker"`)
}

func TestBreakerStats(t *testing.T) {
	f := newFixture(t, workerSource)
	w := f.do(t, http.MethodGet, "/v1/forge/breakers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"breakers":[]}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/forge/generate", GenerateRequest{ComponentID: "worker", Prompt: "Write it.", Shape: workerShape})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/forge/breakers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Breakers []resilience.BreakerStats `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Breakers, 1)
	assert.Equal(t, "worker/generate", resp.Breakers[0].Key)
	assert.Equal(t, "closed", resp.Breakers[0].State)
	assert.Equal(t, int64(1), resp.Breakers[0].Calls)
}

func TestResetBreakers(t *testing.T) {
	f := newFixture(t)
	key := resilience.BreakerKey{Component: "worker", Operation: "generate"}
	cb := f.breakers.Get(key)
	for i := 0; i < resilience.DefaultBreakerConfig().FailureThreshold; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, resilience.CircuitOpen, cb.State())

	w := f.do(t, http.MethodPost, "/v1/forge/breakers/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Breakers []resilience.BreakerStats `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Breakers, 1)
	assert.Equal(t, "closed", resp.Breakers[0].State)
	assert.Equal(t, resilience.CircuitClosed, cb.State())
}

func TestGenerate_FailureCarriesReport(t *testing.T) {
	f := newFixture(t, "class Worker(Component):\n    password = \"abc123xyz\"\n")
	w := f.do(t, http.MethodPost, "/v1/forge/generate", GenerateRequest{ComponentID: "worker", Prompt: "Write it.", Shape: workerShape})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Error   string `json:"error"`
		Report  string `json:"report"`
		Failure struct {
			Reason string `json:"reason"`
			Action string `json:"action"`
		} `json:"failure"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fail_hard", resp.Failure.Action)
	assert.Equal(t, orchestrator.ReasonPolicy, resp.Failure.Reason)
	assert.Contains(t, resp.Report, "insecure_literal")
	assert.NotContains(t, w.Body.String(), "abc123xyz")
}

func TestGenerate_BadRequest(t *testing.T) {
	f := newFixture(t, workerSource)
	w := f.do(t, http.MethodPost, "/v1/forge/generate", map[string]string{"component_id": "worker"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.oracle.Calls())
}

func TestGenerate_NotConfigured(t *testing.T) {
	router := NewRouter(&Handlers{Validator: validate.NewValidator()}, prometheus.NewRegistry())
	for _, path := range []string{"/v1/forge/artifacts", "/v1/forge/artifacts/x"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/forge/generate", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetArtifact_NotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/forge/artifacts/absent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_ExposesPipelineCounters(t *testing.T) {
	f := newFixture(t, workerSource)
	w := f.do(t, http.MethodPost, "/v1/forge/generate", GenerateRequest{ComponentID: "worker", Prompt: "Write it.", Shape: workerShape})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `forge_attempts_total{outcome="accepted"} 1`)
	assert.Contains(t, w.Body.String(), "forge_pipelines_total")
}
