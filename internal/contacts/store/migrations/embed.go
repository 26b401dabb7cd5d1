// Package migrations embeds the contact schema for each SQL backend.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	PostgresRoot = "postgres"
	SQLiteRoot   = "sqlite"
)
