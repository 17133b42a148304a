// Package migrations embeds the controller store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
