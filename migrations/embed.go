// Package migrations embeds the SQL schema migrations for the portal's
// own storage (the audit trail).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
