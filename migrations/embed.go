// Package migrations embeds the PostgreSQL schema so the binary can migrate
// without a checkout of this directory.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
