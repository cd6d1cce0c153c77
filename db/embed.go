// Package db provides the embedded database schemas.
package db

import _ "embed"

// PostgresSchema contains the DDL for PostgreSQL. It is idempotent.
//
//go:embed migrations/postgres/001_schema.sql
var PostgresSchema string

// SQLiteSchema contains the DDL for the embedded SQLite store. It is idempotent.
//
//go:embed migrations/sqlite/001_schema.sql
var SQLiteSchema string
