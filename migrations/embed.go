// Package migrations embeds the boxlink SQL schema into the binary.
//
// Pass FS to database.DB.Migrate:
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil { ... }
package migrations

import "embed"

// FS holds every *.sql file of this directory at its root.
//
//go:embed *.sql
var FS embed.FS
