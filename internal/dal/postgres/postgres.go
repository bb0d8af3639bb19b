// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package postgres wires sqlstore.Store to a Postgres database via
// github.com/lib/pq, the production storage backend.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/dal/sqlstore"
)

// Error is the error class for the Postgres adapter.
var Error = errs.Class("postgres")

type dialect struct{}

func (dialect) Name() string                 { return "postgres" }
func (dialect) Placeholder(n int) string      { return fmt.Sprintf("$%d", n) }
func (dialect) SupportsReturning() bool       { return true }
func (dialect) LockForUpdate() string         { return " FOR UPDATE" }
func (dialect) BeginImmediate() bool          { return false }

// Config holds the connection parameters taken from the root
// configuration's per-tenant dataSource block.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to Postgres and returns a ready-to-use metadata store.
// Callers must call Migrate once at startup.
func Open(log *zap.Logger, cfg Config) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.Ping(); err != nil {
		return nil, Error.Wrap(err)
	}
	return sqlstore.New(log.Named("dal.postgres"), db, dialect{}), nil
}
