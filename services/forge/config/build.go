// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianForge/services/forge/classify"
	"github.com/AleutianAI/AleutianForge/services/forge/oracle"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/store"
)

// BuildOracle creates the configured oracle adapter.
//
// Outputs:
//
//	oracle.Oracle - The adapter. No request has been made yet.
//	error - A *classify.ConfigurationError when the provider cannot be set up.
func (c Config) BuildOracle() (oracle.Oracle, error) {
	var (
		o   oracle.Oracle
		err error
	)
	switch c.Oracle.Provider {
	case oracle.ProviderOpenAI:
		o, err = oracle.NewOpenAI(oracle.OpenAIConfig{
			Model:       c.Oracle.Model,
			BaseURL:     c.Oracle.BaseURL,
			APIKeyEnv:   c.Oracle.APIKeyEnv,
			Temperature: float32(c.Oracle.Temperature),
		})
	case oracle.ProviderOllama:
		o, err = oracle.NewOllama(oracle.OllamaConfig{
			Model:       c.Oracle.Model,
			BaseURL:     c.Oracle.BaseURL,
			Temperature: c.Oracle.Temperature,
		})
	case oracle.ProviderReplay:
		o, err = oracle.NewReplay(c.Oracle.ReplayDir)
	default:
		err = fmt.Errorf("unknown provider %q", c.Oracle.Provider)
	}
	if err != nil {
		return nil, &classify.ConfigurationError{Resource: "oracle " + c.Oracle.Provider, Err: err}
	}
	return o, nil
}

// Guard wraps o with the configured capabilities, breaker settings, rate
// limit and request timeout. onChange may be nil.
func (c Config) Guard(o oracle.Oracle, onChange resilience.StateChangeFunc) (*oracle.Guard, error) {
	caps, err := c.ResolvedCapabilities()
	if err != nil {
		return nil, err
	}
	return oracle.NewGuard(o, oracle.GuardConfig{
		Provider:     c.Oracle.Provider,
		Capabilities: caps,
		RateLimit:    c.RateLimit,
		Breakers:     resilience.NewRegistry(c.CircuitBreaker, onChange),
		Timeout:      c.Pipeline.RequestTimeout,
	}), nil
}

// OpenStore opens the configured artifact store. Backend none yields a nil
// store and no error.
func (c Config) OpenStore(logger *slog.Logger) (store.Store, error) {
	switch c.Storage.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "none":
		return nil, nil
	}
	bc := store.DefaultBadgerConfig(c.Storage.Path)
	bc.GCInterval = c.Storage.GCInterval
	bc.GCDiscardRatio = c.Storage.GCDiscardRatio
	bc.Logger = logger
	s, err := store.OpenBadger(bc)
	if err != nil {
		return nil, &classify.ConfigurationError{Resource: "storage " + c.Storage.Path, Err: err}
	}
	return s, nil
}
