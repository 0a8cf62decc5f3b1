package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"securechat/internal/database"
)

const (
	DriverBadger = "badger"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Options struct {
	Driver       string
	DSN          string
	BadgerPath   string
	PollInterval time.Duration
}

// Open returns the store selected by opts.Driver. SQL stores are migrated
// before they are returned.
func Open(ctx context.Context, opts Options, log logrus.FieldLogger) (Store, error) {
	switch opts.Driver {
	case DriverBadger, "":
		return OpenBadger(opts.BadgerPath, log)
	case DriverMySQL:
		return openSQL(ctx, database.DriverMySQL, opts, log)
	case DriverSQLite:
		return openSQL(ctx, database.DriverSQLite, opts, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func openSQL(ctx context.Context, driver string, opts Options, log logrus.FieldLogger) (*SQLStore, error) {
	db, err := database.Connect(ctx, driver, opts.DSN, log)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if err := database.RunMigrations(ctx, db, driver, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQL(db, opts.PollInterval, log), nil
}
