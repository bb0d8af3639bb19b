// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package sqlstore

import "strings"

// renderSchema substitutes the handful of tokens that differ between
// Postgres and sqlite DDL out of the dialect-neutral schemaStatements.
func renderSchema(dialectName string) []string {
	var pkKey, blob string
	switch dialectName {
	case "postgres":
		pkKey = "BIGSERIAL PRIMARY KEY"
		blob = "BYTEA"
	case "sqlite3":
		pkKey = "INTEGER PRIMARY KEY AUTOINCREMENT"
		blob = "BLOB"
	default:
		pkKey = "BIGINT PRIMARY KEY"
		blob = "BLOB"
	}

	out := make([]string, len(schemaStatements))
	for i, stmt := range schemaStatements {
		stmt = strings.ReplaceAll(stmt, "BIGINT      PRIMARY KEY AUTOINCREMENT", pkKey)
		stmt = strings.ReplaceAll(stmt, "BLOB        NOT NULL", blob+" NOT NULL")
		out[i] = stmt
	}
	return out
}

// Migrate applies the schema to db, creating tables and indexes if they
// don't already exist. Idempotent: safe to call on every service startup,
// following storj-storj's internal/migrate convention of plain,
// versionless "CREATE TABLE IF NOT EXISTS" migrations for this scope.
func (s *Store) Migrate() error {
	for _, stmt := range renderSchema(s.dialect.Name()) {
		if _, err := s.db.Exec(stmt); err != nil {
			return Error.New("migrate: %w", err)
		}
	}
	return nil
}
