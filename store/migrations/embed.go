package migrations

import "embed"

// FS contains embedded SQLite migrations for the task broker.
//
//go:embed *.sql
var FS embed.FS
