package store

import (
	"database/sql"
	"path"

	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"

	assets "github.com/haatos/runkeeper"
	"github.com/haatos/runkeeper/internal/settings"
)

// RunMigrations applies the embedded migrations for driver ("sqlite" or "pgx").
func RunMigrations(db *sql.DB, driver string) {
	goose.SetBaseFS(assets.MigrationsFS)
	goose.SetLogger(log.StandardLogger())

	dialect, dir := "sqlite", "sqlite"
	if driver == settings.DriverPostgres {
		dialect, dir = "postgres", "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		log.Fatal(err)
	}
	if err := goose.Up(db, path.Join("migrations", dir)); err != nil {
		log.Fatal(err)
	}
}
