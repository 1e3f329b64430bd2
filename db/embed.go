// Package db carries the embedded database schema.
package db

import _ "embed"

// Schema is the full DDL applied on startup. The schema is idempotent
// (CREATE ... IF NOT EXISTS) so re-running it against an existing
// database is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
