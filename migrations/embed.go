// Package migrations embeds the SQL migration files into the binary, so
// deployments run schema migrations without loose files on disk.
package migrations

import (
	"embed"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files sit at the root of the embedded FS
}
