// Package migrations ships the schema migration files inside the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
