// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package backendtest is a conformance suite every jobcache.Backend must
// pass, grounded on storj-storj/private/kvstore/testsuite's
// RunTests(t, store)-against-any-implementation idiom: membackend and
// redisbackend both run it so a future backend only needs to pass the
// same suite to be a drop-in replacement.
package backendtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/internal/jobcache"
)

// RunConformance exercises the Backend contract jobcache.Cache relies on.
// newBackend must return a fresh, empty backend each call.
func RunConformance(t *testing.T, newBackend func() jobcache.Backend) {
	t.Run("LoadMissing", func(t *testing.T) {
		b := newBackend()
		_, _, found, err := b.Load(context.Background(), "missing")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("CreateThenLoad", func(t *testing.T) {
		b := newBackend()
		ctx := context.Background()

		gen, err := b.CompareAndSwap(ctx, "k", 0, []byte("v1"))
		require.NoError(t, err)
		require.NotZero(t, gen)

		data, loadedGen, found, err := b.Load(ctx, "k")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, gen, loadedGen)
		require.Equal(t, []byte("v1"), data)
	})

	t.Run("CreateConflictsOnExisting", func(t *testing.T) {
		b := newBackend()
		ctx := context.Background()

		_, err := b.CompareAndSwap(ctx, "k", 0, []byte("v1"))
		require.NoError(t, err)

		_, err = b.CompareAndSwap(ctx, "k", 0, []byte("v2"))
		require.ErrorIs(t, err, jobcache.ErrConflict)
	})

	t.Run("UpdateRequiresCurrentGen", func(t *testing.T) {
		b := newBackend()
		ctx := context.Background()

		gen1, err := b.CompareAndSwap(ctx, "k", 0, []byte("v1"))
		require.NoError(t, err)

		gen2, err := b.CompareAndSwap(ctx, "k", gen1, []byte("v2"))
		require.NoError(t, err)
		require.NotEqual(t, gen1, gen2)

		_, err = b.CompareAndSwap(ctx, "k", gen1, []byte("v3"))
		require.ErrorIs(t, err, jobcache.ErrConflict)

		data, _, found, err := b.Load(ctx, "k")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte("v2"), data)
	})

	t.Run("UpdateAgainstMissingKeyConflicts", func(t *testing.T) {
		b := newBackend()
		_, err := b.CompareAndSwap(context.Background(), "missing", 7, []byte("v"))
		require.ErrorIs(t, err, jobcache.ErrConflict)
	})

	t.Run("DeleteThenLoadMisses", func(t *testing.T) {
		b := newBackend()
		ctx := context.Background()

		_, err := b.CompareAndSwap(ctx, "k", 0, []byte("v1"))
		require.NoError(t, err)
		require.NoError(t, b.Delete(ctx, "k"))

		_, _, found, err := b.Load(ctx, "k")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("DeleteMissingIsNotAnError", func(t *testing.T) {
		b := newBackend()
		require.NoError(t, b.Delete(context.Background(), "missing"))
	})

	t.Run("ScanVisitsEveryKey", func(t *testing.T) {
		b := newBackend()
		ctx := context.Background()

		want := map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}
		for k, v := range want {
			_, err := b.CompareAndSwap(ctx, k, 0, v)
			require.NoError(t, err)
		}

		got := map[string][]byte{}
		require.NoError(t, b.Scan(ctx, func(key string, data []byte) error {
			got[key] = data
			return nil
		}))
		require.Equal(t, want, got)
	})

	t.Run("ScanPropagatesCallbackError", func(t *testing.T) {
		b := newBackend()
		ctx := context.Background()
		_, err := b.CompareAndSwap(ctx, "a", 0, []byte("1"))
		require.NoError(t, err)

		boom := errBoom{}
		err = b.Scan(ctx, func(string, []byte) error { return boom })
		require.ErrorIs(t, err, boom)
	})
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
