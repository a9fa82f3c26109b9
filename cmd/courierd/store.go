package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/xraph/courier/config"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/store/bunstore"
	"github.com/xraph/courier/store/memory"
	redisstore "github.com/xraph/courier/store/redis"
)

// openStore connects the configured backend and verifies it responds.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	var (
		s   store.Store
		err error
	)

	switch cfg.Driver {
	case config.DriverMemory:
		s = memory.New()
	case config.DriverPostgres:
		s, err = openBun(cfg, "pgx", func(db *sql.DB) *bun.DB { return bun.NewDB(db, pgdialect.New()) })
	case config.DriverSQLite:
		s, err = openBun(cfg, "sqlite3", func(db *sql.DB) *bun.DB {
			// SQLite allows a single writer.
			db.SetMaxOpenConns(1)
			return bun.NewDB(db, sqlitedialect.New())
		})
	case config.DriverRedis:
		opts, parseErr := goredis.ParseURL(cfg.DSN)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		s = redisstore.NewFromClient(goredis.NewClient(opts))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	return s, nil
}

func openBun(cfg config.StoreConfig, driverName string, wrap func(*sql.DB) *bun.DB) (store.Store, error) {
	sqlDB, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return bunstore.New(wrap(sqlDB)), nil
}
