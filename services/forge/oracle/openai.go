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
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// ProviderOpenAI talks to an OpenAI compatible chat completion endpoint.
	ProviderOpenAI = "openai"

	defaultOpenAIModel = "gpt-4o-mini"
	openAISecretPath   = "/run/secrets/openai_api_key"

	systemPrompt = "You write complete, production ready Python source files. " +
		"Reply with source code only. Never leave stubs, placeholder comments, or hardcoded credentials."
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	Model   string
	BaseURL string

	// APIKeyEnv names the environment variable holding the key. When it is
	// unset the podman secret path is tried.
	APIKeyEnv   string
	Temperature float32
}

// OpenAI is an Oracle backed by the chat completion API.
//
// The key is read into a memguard enclave, which wipes the source bytes,
// and is only opened while the client is constructed.
type OpenAI struct {
	client *openai.Client
	model  string
	temp   float32
}

// NewOpenAI creates the adapter.
//
// Outputs:
//
//	*OpenAI - The adapter.
//	error - Wraps ErrMisconfigured when no key can be found.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	envName := cfg.APIKeyEnv
	if envName == "" {
		envName = "OPENAI_API_KEY"
	}
	raw := []byte(os.Getenv(envName))
	if len(raw) == 0 {
		secret, err := os.ReadFile(openAISecretPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s not set and no secret at %s", ErrMisconfigured, envName, openAISecretPath)
		}
		raw = []byte(strings.TrimSpace(string(secret)))
		slog.Info("Read the OpenAI API key from podman secrets")
	}

	// NewEnclave wipes raw.
	enclave := memguard.NewEnclave(raw)
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening key enclave: %v", ErrMisconfigured, err)
	}
	clientCfg := openai.DefaultConfig(string(buf.Bytes()))
	buf.Destroy()
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	slog.Info("Initializing OpenAI oracle", "model", model)
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		temp:   cfg.Temperature,
	}, nil
}

// Request implements Oracle.
func (o *OpenAI) Request(ctx context.Context, prompt, feedback string) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAI.Request")
	defer span.End()
	span.SetAttributes(attribute.String("model", o.model), attribute.Bool("retry", feedback != ""))

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temp,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: ComposePrompt(prompt, feedback)},
		},
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", &Error{Provider: ProviderOpenAI, Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		span.SetStatus(codes.Error, "empty response")
		return "", &Error{Provider: ProviderOpenAI, Op: "chat completion", Err: ErrMalformedResponse}
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
