// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package jobcache

import (
	"context"
	"errors"
)

// ErrConflict is returned by Backend.CompareAndSwap when the stored
// generation no longer matches expectGen: something else observed the key
// between the caller's Load and this CompareAndSwap.
var ErrConflict = errors.New("jobcache: compare-and-swap conflict")

// Backend is the storage abstraction Cache is built on: a keyed store of
// opaque byte records with compare-and-swap semantics, modeled on the
// teacher's kvstore.Store (Get/Put/Delete by key, see
// storj-storj/private/kvstore/testsuite/test_crud.go) but extended with a
// generation token so ticket grants are one atomic compare-and-swap
// instead of a racy read-modify-write.
//
// membackend and redisbackend are the two implementations; both are
// exercised by RunConformance so a future backend need only pass that
// suite to be a drop-in replacement.
type Backend interface {
	// Load returns the bytes stored at key and an opaque generation token.
	// found is false if key doesn't exist; gen is meaningless in that case.
	Load(ctx context.Context, key string) (data []byte, gen uint64, found bool, err error)

	// CompareAndSwap writes data at key iff the stored generation still
	// equals expectGen. expectGen of 0 means "key must not currently
	// exist". Returns ErrConflict if the expectation doesn't hold.
	CompareAndSwap(ctx context.Context, key string, expectGen uint64, data []byte) (newGen uint64, err error)

	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error

	// Scan calls fn once for every stored key, in no particular order.
	// Returning an error from fn stops the scan and propagates the error.
	Scan(ctx context.Context, fn func(key string, data []byte) error) error
}
