// Package migrations embeds the SQL migration set so golang-migrate can
// read it via the iofs source driver without shipping loose files next to
// the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
