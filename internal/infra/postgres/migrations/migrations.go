package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema change of the service, applied by the migrate command.
var Migrations = migrate.NewMigrations()
