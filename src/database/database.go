// backend/src/database/database.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/username/fincoach/backend/src/logger"
	_ "modernc.org/sqlite"
)

// DB is the shared connection handle, set once by InitDB at startup.
var DB *sql.DB

// InitDB opens the SQLite file and configures it for a single-writer web
// backend: WAL journaling, a busy timeout instead of immediate lock errors,
// and foreign keys on. The pool is capped at one connection; SQLite allows
// one writer and the busy timeout handles the rest.
func InitDB(databasePath string) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		stdlog.Fatalf("failed to ping database: %v", err)
	}
	DB = db
	logger.L.Info("Database connection established", "path", databasePath)
}

// RunMigrations applies any pending schema migrations from migrationsPath
// (MIGRATIONS_PATH, relative paths resolved against the working directory).
// Must run after InitDB; a migration failure is fatal.
func RunMigrations(databasePath, migrationsPath string) {
	if DB == nil {
		stdlog.Fatal("database connection is not initialized before running migrations")
	}

	driver, err := sqlite.WithInstance(DB, &sqlite.Config{})
	if err != nil {
		stdlog.Fatalf("could not create sqlite migration driver: %v", err)
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		stdlog.Fatalf("could not resolve migrations path %q: %v", migrationsPath, err)
	}
	sourceURL := "file://" + filepath.ToSlash(absPath)

	m, err := migrate.NewWithDatabaseInstance(sourceURL, databasePath, driver)
	if err != nil {
		stdlog.Fatalf("migration setup failed for %s: %v", sourceURL, err)
	}

	logger.L.Info("Applying database migrations...", "source", sourceURL)
	switch err = m.Up(); {
	case err == nil:
		logger.L.Info("Database migrations applied.")
	case errors.Is(err, migrate.ErrNoChange):
		logger.L.Info("Database schema is up to date.")
	default:
		stdlog.Fatalf("failed to apply migrations: %v", err)
	}
}
