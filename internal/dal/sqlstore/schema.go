// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package sqlstore

// schemaStatements is the logical schema, rendered in (mostly)
// dialect-neutral SQL. renderSchema applies a small set of per-dialect
// substitutions (autoincrement syntax, blob type) before Migrate
// executes these.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tenant (
		tenant_id   VARCHAR(64) PRIMARY KEY,
		description VARCHAR(256) NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS object_id (
		tenant_id     VARCHAR(64) NOT NULL,
		object_pk     BIGINT      PRIMARY KEY AUTOINCREMENT,
		object_type   VARCHAR(32) NOT NULL,
		object_id_hi  BIGINT      NOT NULL,
		object_id_lo  BIGINT      NOT NULL,
		UNIQUE (tenant_id, object_id_hi, object_id_lo)
	)`,

	`CREATE TABLE IF NOT EXISTS object_definition (
		tenant_id        VARCHAR(64) NOT NULL,
		definition_pk    BIGINT      PRIMARY KEY AUTOINCREMENT,
		object_fk        BIGINT      NOT NULL,
		object_version   INTEGER     NOT NULL,
		object_timestamp TIMESTAMP   NOT NULL,
		superseded       TIMESTAMP,
		is_latest        BOOLEAN     NOT NULL,
		meta_format      VARCHAR(32) NOT NULL,
		meta_version     INTEGER     NOT NULL,
		definition       BLOB        NOT NULL,
		UNIQUE (tenant_id, object_fk, object_version)
	)`,

	`CREATE TABLE IF NOT EXISTS tag (
		tenant_id     VARCHAR(64) NOT NULL,
		tag_pk        BIGINT      PRIMARY KEY AUTOINCREMENT,
		definition_fk BIGINT      NOT NULL,
		tag_version   INTEGER     NOT NULL,
		tag_timestamp TIMESTAMP   NOT NULL,
		superseded    TIMESTAMP,
		is_latest     BOOLEAN     NOT NULL,
		object_type   VARCHAR(32) NOT NULL,
		UNIQUE (tenant_id, definition_fk, tag_version)
	)`,

	`CREATE TABLE IF NOT EXISTS tag_attr (
		tenant_id           VARCHAR(64) NOT NULL,
		tag_fk              BIGINT      NOT NULL,
		attr_name            VARCHAR(128) NOT NULL,
		attr_type            VARCHAR(16)  NOT NULL,
		attr_index           INTEGER      NOT NULL,
		attr_value_boolean   BOOLEAN,
		attr_value_integer   BIGINT,
		attr_value_float     DOUBLE PRECISION,
		attr_value_string    TEXT,
		attr_value_decimal   VARCHAR(64),
		attr_value_date      DATE,
		attr_value_datetime  TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS object_id_latest_idx ON object_definition (tenant_id, object_fk, is_latest)`,
	`CREATE INDEX IF NOT EXISTS tag_latest_idx ON tag (tenant_id, definition_fk, is_latest)`,
	`CREATE INDEX IF NOT EXISTS tag_attr_name_idx ON tag_attr (tenant_id, attr_name, attr_type)`,
}
