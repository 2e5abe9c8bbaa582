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
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// ProviderOllama talks to a local Ollama server.
	ProviderOllama = "ollama"

	defaultOllamaModel = "gpt-oss"
	defaultOllamaURL   = "http://localhost:11434"
)

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	Model       string
	BaseURL     string
	Temperature float64
}

// Ollama is an Oracle backed by a local Ollama server.
type Ollama struct {
	llm   llms.Model
	model string
	temp  float64
}

// NewOllama creates the adapter. No request is made until Request.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(baseURL),
		ollama.WithSystemPrompt(systemPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama client: %v", ErrMisconfigured, err)
	}
	slog.Info("Initializing Ollama oracle", "base_url", baseURL, "model", model)
	return &Ollama{llm: llm, model: model, temp: cfg.Temperature}, nil
}

// Request implements Oracle.
func (o *Ollama) Request(ctx context.Context, prompt, feedback string) (string, error) {
	ctx, span := tracer.Start(ctx, "Ollama.Request")
	defer span.End()
	span.SetAttributes(attribute.String("model", o.model), attribute.Bool("retry", feedback != ""))

	text, err := llms.GenerateFromSinglePrompt(ctx, o.llm, ComposePrompt(prompt, feedback),
		llms.WithTemperature(o.temp))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", &Error{Provider: ProviderOllama, Op: "generate", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		span.SetStatus(codes.Error, "empty response")
		return "", &Error{Provider: ProviderOllama, Op: "generate", Err: ErrMalformedResponse}
	}
	return text, nil
}
