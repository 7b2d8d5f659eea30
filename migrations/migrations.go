// Package migrations carries the schema migration scripts, embedded so the
// server applies them regardless of its working directory.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
