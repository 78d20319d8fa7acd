// Package migrations embeds the numbered SQL migrations applied by
// db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
