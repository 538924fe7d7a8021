// Package migrations embeds the SQL schema files into the binary and
// registers them with the database package.
package migrations

import (
	"embed"

	"github.com/mblarson/omnihome/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.Migrations = files
	database.MigrationsDir = "."
}
