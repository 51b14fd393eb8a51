// Package migrations embeds the SQL schema for the floor plan service.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-floorplan/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
