// Package migrations embeds the pipeline's numbered SQL schema files so
// the migration runner can apply them without a filesystem dependency at
// deploy time.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
