// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the forge configuration.
//
// Values are resolved with the precedence environment > file > defaults.
// The file is YAML; unknown keys are rejected so typos surface at load time
// instead of silently falling back to a default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianForge/services/forge/gate"
	"github.com/AleutianAI/AleutianForge/services/forge/orchestrator"
	"github.com/AleutianAI/AleutianForge/services/forge/policy"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/telemetry"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// structValidator checks the struct tags of Config and manifests.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete forge configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after Load.
type Config struct {
	Pipeline       PipelineConfig             `yaml:"pipeline"`
	Thresholds     map[string]int             `yaml:"thresholds" validate:"dive,gte=0"`
	Policies       map[string]policy.Override `yaml:"policies"`
	Capabilities   []string                   `yaml:"capabilities"`
	CircuitBreaker resilience.BreakerConfig   `yaml:"circuit_breaker"`
	RateLimit      resilience.RateLimitConfig `yaml:"rate_limit"`
	Quality        validate.QualityConfig     `yaml:"quality"`
	Oracle         OracleConfig               `yaml:"oracle"`
	Storage        StorageConfig              `yaml:"storage"`
	Logging        LoggingConfig              `yaml:"logging"`
	Server         ServerConfig               `yaml:"server"`
	Telemetry      telemetry.Config           `yaml:"telemetry"`
}

// PipelineConfig bounds each pipeline and the batch runner.
type PipelineConfig struct {
	MaxAttempts             int           `yaml:"max_attempts" validate:"gte=1"`
	RequestTimeout          time.Duration `yaml:"request_timeout" validate:"gte=0"`
	Concurrency             int           `yaml:"concurrency" validate:"gte=1"`
	IncludeInformational    bool          `yaml:"include_informational"`
	AbortSiblingsOnFailHard bool          `yaml:"abort_siblings_on_fail_hard"`
}

// OracleConfig selects and configures the generation oracle.
type OracleConfig struct {
	Provider    string  `yaml:"provider" validate:"oneof=openai ollama replay"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	ReplayDir   string  `yaml:"replay_dir" validate:"required_if=Provider replay"`
}

// StorageConfig selects where accepted artifacts are persisted.
type StorageConfig struct {
	Backend        string        `yaml:"backend" validate:"oneof=badger memory none"`
	Path           string        `yaml:"path" validate:"required_if=Backend badger"`
	GCInterval     time.Duration `yaml:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
}

// ServerConfig configures forge serve.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			MaxAttempts:    8,
			RequestTimeout: 2 * time.Minute,
			Concurrency:    4,
		},
		Thresholds:     gate.DefaultThresholds().Map(),
		Capabilities:   []string{string(resilience.CapabilityRetry), string(resilience.CapabilityCircuitBreaker)},
		CircuitBreaker: resilience.DefaultBreakerConfig(),
		RateLimit:      resilience.DefaultRateLimitConfig(),
		Quality:        validate.DefaultQualityConfig(),
		Oracle: OracleConfig{
			Provider:    "openai",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.2,
		},
		Storage: StorageConfig{
			Backend:        "badger",
			Path:           ".forge/artifacts",
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Logging:   LoggingConfig{Level: "info"},
		Server:    ServerConfig{Addr: "127.0.0.1:8087"},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load resolves the configuration.
//
// Description:
//
//	Starts from Default, applies the YAML file at path when it exists, then
//	the FORGE_* environment overrides, and validates the result. An empty
//	path skips the file.
//
// Inputs:
//
//	path - YAML file. May be empty or missing.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Non-nil if the file is unreadable, malformed or invalid.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	// Thresholds replace the defaults as a whole. A severity left out of
	// the file is unbounded, not the default ceiling.
	defaults := cfg.Thresholds
	cfg.Thresholds = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		cfg.Thresholds = defaults
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = defaults
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("FORGE_ORACLE_PROVIDER"); v != "" {
		cfg.Oracle.Provider = v
	}
	if v := os.Getenv("FORGE_ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("FORGE_ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("FORGE_REPLAY_DIR"); v != "" {
		cfg.Oracle.ReplayDir = v
	}
	if v := os.Getenv("FORGE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FORGE_TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("FORGE_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FORGE_MAX_ATTEMPTS: %v", ErrInvalidConfig, err)
		}
		cfg.Pipeline.MaxAttempts = n
	}
	if v := os.Getenv("FORGE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FORGE_CONCURRENCY: %v", ErrInvalidConfig, err)
		}
		cfg.Pipeline.Concurrency = n
	}
	return nil
}

// Validate checks struct constraints and the semantic rules of thresholds,
// policies and capabilities.
func (c Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Settings(); err != nil {
		return err
	}
	if _, err := c.ResolvedCapabilities(); err != nil {
		return err
	}
	return nil
}

// Settings builds the orchestrator settings snapshot.
func (c Config) Settings() (orchestrator.Settings, error) {
	thresholds, err := gate.NewThresholds(c.Thresholds)
	if err != nil {
		return orchestrator.Settings{}, fmt.Errorf("%w: thresholds: %v", ErrInvalidConfig, err)
	}
	thresholds.IncludeInformational = c.Pipeline.IncludeInformational

	table, err := policy.NewTable(c.Policies)
	if err != nil {
		return orchestrator.Settings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return orchestrator.Settings{
		MaxAttempts:             c.Pipeline.MaxAttempts,
		Concurrency:             c.Pipeline.Concurrency,
		AbortSiblingsOnFailHard: c.Pipeline.AbortSiblingsOnFailHard,
		Thresholds:              thresholds,
		Policies:                table,
	}, nil
}

// ResolvedCapabilities parses the capability list.
func (c Config) ResolvedCapabilities() (resilience.Capabilities, error) {
	caps, err := resilience.ParseCapabilities(c.Capabilities)
	if err != nil {
		return resilience.Capabilities{}, fmt.Errorf("%w: capabilities: %v", ErrInvalidConfig, err)
	}
	return caps, nil
}
