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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ProviderReplay serves recorded responses from disk.
const ProviderReplay = "replay"

// Replay answers from files in a directory. It is used for offline runs and
// reproducing a failed pipeline.
//
// A prompt maps to <dir>/<sha256(prompt)[:16]>.py. When several files exist
// for one prompt as <key>.1.py, <key>.2.py and so on, successive requests
// step through them and repeat the last one.
type Replay struct {
	dir string

	mu    sync.Mutex
	calls map[string]int
}

// NewReplay creates a replay oracle over dir.
func NewReplay(dir string) (*Replay, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: replay directory: %w", ErrMisconfigured, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: replay path %s is not a directory", ErrMisconfigured, dir)
	}
	return &Replay{dir: dir, calls: make(map[string]int)}, nil
}

// ReplayKey returns the file stem used for prompt.
func ReplayKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// Request implements Oracle. The feedback does not change which file is
// served; only the call count does.
func (r *Replay) Request(ctx context.Context, prompt, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := ReplayKey(prompt)

	r.mu.Lock()
	r.calls[key]++
	n := r.calls[key]
	r.mu.Unlock()

	for i := n; i >= 1; i-- {
		data, err := os.ReadFile(filepath.Join(r.dir, fmt.Sprintf("%s.%d.py", key, i)))
		if err == nil {
			return string(data), nil
		}
	}
	data, err := os.ReadFile(filepath.Join(r.dir, key+".py"))
	if err != nil {
		return "", fmt.Errorf("%w: no recorded response for prompt %s: %w", ErrMisconfigured, key, err)
	}
	return string(data), nil
}
