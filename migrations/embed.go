// Package migrations embeds the PostgreSQL schema for cmd/migrate and tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
