package postgres

import "embed"

// Migrations holds the embedded schema migrations applied by Open.
//
//go:embed migrations/*.sql
var Migrations embed.FS
