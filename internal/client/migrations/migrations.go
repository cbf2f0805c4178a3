// Package migrations embeds the goose SQL migrations for the client's local
// share history database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
