package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	SQLDriverPgdriver = "pgdriver"
	SQLDriverPq       = "pq"
)

type PostgresOptions struct {
	DSN          string
	SQLDriver    string // pgdriver (default) or pq
	MaxOpenConns int
}

// OpenPostgres opens a bun handle over the selected database/sql driver and pings it.
func OpenPostgres(opts PostgresOptions) (*bun.DB, error) {
	var sqlDB *sql.DB
	switch opts.SQLDriver {
	case "", SQLDriverPgdriver:
		sqlDB = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(opts.DSN)))
	case SQLDriverPq:
		var err error
		sqlDB, err = sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown postgres sql driver %q", opts.SQLDriver)
	}

	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return bun.NewDB(sqlDB, pgdialect.New()), nil
}
