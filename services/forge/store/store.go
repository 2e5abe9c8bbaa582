// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists accepted artifacts.
//
// Only accepted artifacts are ever written. A later acceptance for the same
// component replaces the earlier record.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by Get for unknown components.
var ErrNotFound = errors.New("artifact not found")

// Record is one accepted artifact.
type Record struct {
	ComponentID string    `json:"component_id"`
	Operation   string    `json:"operation"`
	Text        string    `json:"text"`
	SHA256      string    `json:"sha256"`
	Attempts    int       `json:"attempts"`
	Repaired    bool      `json:"repaired"`
	AcceptedAt  time.Time `json:"accepted_at"`
}

// Sink receives accepted artifacts.
type Sink interface {
	Put(ctx context.Context, r Record) error
}

// Store is a Sink that can also be read back.
type Store interface {
	Sink
	Get(ctx context.Context, componentID string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Memory is an in-process Store.
//
// Thread Safety: Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

// Put implements Sink.
func (m *Memory) Put(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ComponentID == "" {
		return errors.New("record has no component id")
	}
	m.mu.Lock()
	m.records[r.ComponentID] = r
	m.mu.Unlock()
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, componentID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[componentID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// List implements Store. Records are ordered by component id.
func (m *Memory) List(context.Context) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
