// Package migrations embeds the ledger schema so the binary can create
// and upgrade its database without SQL files on disk.
package migrations

import "embed"

// FS holds the migration files at its root.
//
//go:embed *.sql
var FS embed.FS
