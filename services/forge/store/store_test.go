// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, attempts int) Record {
	return Record{
		ComponentID: id,
		Operation:   "generate",
		Text:        "class " + id + ": pass\n",
		SHA256:      "abc",
		Attempts:    attempts,
		AcceptedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)

	disk, err := OpenBadger(DefaultBadgerConfig(t.TempDir()))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mem.Close())
		assert.NoError(t, disk.Close())
	})
	return map[string]Store{"memory": NewMemory(), "badger": mem, "badger-disk": disk}
}

func TestStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, record("worker", 1)))
			require.NoError(t, s.Put(ctx, record("emitter", 2)))
			require.NoError(t, s.Put(ctx, record("worker", 3)))

			got, err := s.Get(ctx, "worker")
			require.NoError(t, err)
			assert.Equal(t, 3, got.Attempts, "later acceptance replaces the record")
			assert.True(t, got.AcceptedAt.Equal(record("worker", 3).AcceptedAt))

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "emitter", all[0].ComponentID)
			assert.Equal(t, "worker", all[1].ComponentID)
		})
	}
}

func TestStore_RejectsEmptyID(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Put(context.Background(), Record{}))
		})
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(ctx, record("worker", 1)), context.Canceled)
		})
	}
}

func TestStore_ConcurrentPut(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, s.Put(ctx, record(string(rune('a'+i)), i)))
				}(i)
			}
			wg.Wait()
			all, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 16)
		})
	}
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, record("worker", 2)))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close is a no-op")

	b, err = OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Get(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}
