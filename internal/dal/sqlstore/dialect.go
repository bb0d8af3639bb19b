// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package sqlstore implements dal.Store once, against database/sql, and
// is parameterized over the small set of dialect differences between the
// production Postgres backend (internal/dal/postgres) and the sqlite
// backend used for unit tests and standalone deployments
// (internal/dal/sqlite).
package sqlstore

// Dialect isolates the handful of places Postgres and sqlite disagree:
// placeholder syntax, row locking, and autoincrement key retrieval.
type Dialect interface {
	// Name identifies the dialect in logs and error messages.
	Name() string
	// Placeholder renders the nth (1-based) bind parameter.
	Placeholder(n int) string
	// SupportsReturning reports whether "INSERT ... RETURNING col" is
	// available; when false, the store re-reads generated keys by
	// natural key after insert.
	SupportsReturning() bool
	// LockForUpdate renders the row-locking clause appended to a SELECT
	// used as part of a read-modify-write sequence ("" when the dialect
	// has no equivalent, e.g. sqlite, whose adapter instead serializes
	// writers over a single connection).
	LockForUpdate() string
	// BeginImmediate reports whether the store runs sqlite's
	// per-transaction setup ("PRAGMA foreign_keys = ON") at the start of
	// each write transaction (dialects with real row-level locking return
	// false). It does not take the database lock up front.
	BeginImmediate() bool
}

// Placeholders renders n sequential bind parameters starting at 1, for
// building "IN (...)" clauses and the like.
func Placeholders(d Dialect, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(i + 1)
	}
	return out
}

func placeholderList(d Dialect, from, count int) string {
	out := ""
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ", "
		}
		out += d.Placeholder(from + i)
	}
	return out
}
