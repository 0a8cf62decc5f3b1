package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

// Connect opens a pool for driver and pings it.
func Connect(ctx context.Context, driver, dsn string, log logrus.FieldLogger) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverSQLite:
		// one writer at a time, or sqlite answers "database is locked"
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.WithField("driver", driver).Info("database connected")
	return db, nil
}

// RunMigrations applies the embedded migrations for driver in file name
// order (001 -> 002 -> ...). Every migration is idempotent.
func RunMigrations(ctx context.Context, db *sql.DB, driver string, log logrus.FieldLogger) error {
	dir, err := migrationDir(driver)
	if err != nil {
		return err
	}
	files, err := fs.Glob(migrations, dir+"/*.sql")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		b, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if err := apply(ctx, db, string(b)); err != nil {
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		log.WithField("file", file).Info("migration applied")
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, stmt string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, stmt)
	return err
}

func migrationDir(driver string) (string, error) {
	switch driver {
	case DriverMySQL:
		return "migrations/mysql", nil
	case DriverSQLite:
		return "migrations/sqlite", nil
	default:
		return "", fmt.Errorf("no migrations for driver %q", driver)
	}
}
