// Package migrations embeds the desktop store's goose migration files.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
