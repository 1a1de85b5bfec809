// Package migrations embeds the Goose SQL migration files.
package migrations

import "embed"

// FS holds every .sql migration in this directory, applied in filename order.
//
//go:embed *.sql
var FS embed.FS
