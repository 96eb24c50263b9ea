// Package migrations embeds the auth service schema for database.RunMigrations.
package migrations

import "embed"

// FS holds the *.up.sql files applied at startup, in file name order.
//
//go:embed *.sql
var FS embed.FS
