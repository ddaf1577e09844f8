package store

import (
	"database/sql"
	"runtime"

	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/settings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// InitDatabase opens a handle for the configured driver. SQLite gets a
// single writer connection; Postgres handles both roles with one pool.
func InitDatabase(readonly bool) *sql.DB {
	driver := settings.Settings.DatabaseDriver
	db, err := sql.Open(driver, settings.Settings.DataSourceName(readonly))
	if err != nil {
		log.Fatalf("fatal error opening %s database: %v", driver, err)
	}

	if driver == settings.DriverPostgres {
		db.SetMaxOpenConns(max(4, runtime.NumCPU()*2))
		return db
	}

	if readonly {
		db.SetMaxOpenConns(max(4, runtime.NumCPU()))
	} else {
		if _, err := db.Exec("PRAGMA temp_store=memory"); err != nil {
			log.Fatal(err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			log.Fatal(err)
		}
		db.SetMaxOpenConns(1)
	}

	return db
}
