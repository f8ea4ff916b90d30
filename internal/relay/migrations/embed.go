// Package migrations embeds the relay's goose migration files.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
