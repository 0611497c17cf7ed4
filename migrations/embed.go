// Package migrations embeds the queue record schema for both supported stores.
package migrations

import "embed"

// Postgres holds golang-migrate files under the "postgres" directory.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLiteSchema is applied idempotently when a SQLite store is opened.
//
//go:embed sqlite/schema.sql
var SQLiteSchema string
