// Package migrations holds the bun schema migrations. Each migration lives in
// its own file because bun derives the migration name from the file name.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
