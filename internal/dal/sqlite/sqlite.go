// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package sqlite wires sqlstore.Store to an embedded sqlite database via
// github.com/mattn/go-sqlite3. Used by the test suite and by the
// standalone/single-binary deployment mode that doesn't require an
// external Postgres instance.
package sqlite

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/dal/sqlstore"
)

// Error is the error class for the sqlite adapter.
var Error = errs.Class("sqlite")

type dialect struct{}

func (dialect) Name() string            { return "sqlite3" }
func (dialect) Placeholder(int) string  { return "?" }
func (dialect) SupportsReturning() bool { return false }
func (dialect) LockForUpdate() string   { return "" }
func (dialect) BeginImmediate() bool    { return true }

// Open opens (creating if necessary) a sqlite database file at path.
// Pass ":memory:" for an ephemeral in-process database, the common case
// in tests. Callers must call Migrate once at startup.
func Open(log *zap.Logger, path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	// sqlite only supports one writer at a time; a single connection
	// avoids "database is locked" errors under the sqlstore package's
	// transaction-based write protocol.
	db.SetMaxOpenConns(1)
	return sqlstore.New(log.Named("dal.sqlite"), db, dialect{}), nil
}
