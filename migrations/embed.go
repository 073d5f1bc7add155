// Package migrations embeds the SQL schema files, applied in lexical order at
// startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
