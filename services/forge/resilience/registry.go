// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"sort"
	"sync"
)

// BreakerKey scopes a breaker to one component and operation.
type BreakerKey struct {
	Component string
	Operation string
}

// String renders "component/operation".
func (k BreakerKey) String() string {
	return k.Component + "/" + k.Operation
}

// Registry hands out one breaker per key. Pipelines for different
// components never share a breaker; repeated attempts for the same key do.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	config   BreakerConfig
	onChange StateChangeFunc

	mu       sync.Mutex
	breakers map[BreakerKey]*CircuitBreaker
}

// NewRegistry creates an empty registry whose breakers share config.
func NewRegistry(config BreakerConfig, onChange StateChangeFunc) *Registry {
	return &Registry{
		config:   config,
		onChange: onChange,
		breakers: make(map[BreakerKey]*CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key BreakerKey) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb := NewCircuitBreaker(key.String(), r.config, r.onChange)
	r.breakers[key] = cb
	return cb
}

// Stats returns a snapshot of every breaker, sorted by key.
func (r *Registry) Stats() []BreakerStats {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	stats := make([]BreakerStats, 0, len(breakers))
	for _, cb := range breakers {
		stats = append(stats, cb.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// Reset closes every breaker.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}
