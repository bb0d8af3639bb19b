// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package membackend is an in-memory jobcache.Backend, grounded on the
// teacher's storj-storj/private/kvstore/teststore in-memory reference
// store: a mutex-guarded map, suitable for single-process deployments and
// tests.
package membackend

import (
	"context"
	"sync"

	"github.com/trac-platform/trac/internal/jobcache"
)

type slot struct {
	data []byte
	gen  uint64
}

// Store is a mutex-guarded, in-process jobcache.Backend.
type Store struct {
	mu   sync.Mutex
	data map[string]slot
}

// New builds an empty Store.
func New() *Store {
	return &Store{data: make(map[string]slot)}
}

// Load implements jobcache.Backend.
func (s *Store) Load(_ context.Context, key string) ([]byte, uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.data[key]
	if !ok {
		return nil, 0, false, nil
	}
	out := make([]byte, len(sl.data))
	copy(out, sl.data)
	return out, sl.gen, true, nil
}

// CompareAndSwap implements jobcache.Backend.
func (s *Store) CompareAndSwap(_ context.Context, key string, expectGen uint64, data []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.data[key]
	switch {
	case expectGen == 0 && ok:
		return 0, jobcache.ErrConflict
	case expectGen != 0 && (!ok || sl.gen != expectGen):
		return 0, jobcache.ErrConflict
	}

	newGen := sl.gen + 1
	stored := make([]byte, len(data))
	copy(stored, data)
	s.data[key] = slot{data: stored, gen: newGen}
	return newGen, nil
}

// Delete implements jobcache.Backend.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Scan implements jobcache.Backend.
func (s *Store) Scan(_ context.Context, fn func(key string, data []byte) error) error {
	s.mu.Lock()
	snapshot := make(map[string][]byte, len(s.data))
	for k, sl := range s.data {
		out := make([]byte, len(sl.data))
		copy(out, sl.data)
		snapshot[k] = out
	}
	s.mu.Unlock()

	for k, data := range snapshot {
		if err := fn(k, data); err != nil {
			return err
		}
	}
	return nil
}
