package migrations

import "embed"

// FS contains embedded SQLite migrations for the snapshot cache index.
//
//go:embed *.sql
var FS embed.FS
