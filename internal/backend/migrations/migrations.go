// Package migrations embeds the PostgreSQL schema of the backend: logbook
// rows, the audit trail, revision snapshots and the integrity functions.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
