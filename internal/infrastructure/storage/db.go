// Package storage is the relational-store collaborator: workflows,
// workflow_versions, dashboards, widgets and api_keys (spec.md §6
// "Relational store"). Grounded on the teacher's
// internal/infrastructure/storage/db.go for the bun+pgdriver wiring and
// trigger_repository.go for the bun.IDB repository shape.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/vizflow/vizflow/internal/config"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

// NewDB opens a bun.DB against cfg and verifies connectivity.
func NewDB(cfg config.DatabaseConfig, debug bool, log *logger.Logger) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.URL),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(10*time.Second),
		pgdriver.WithWriteTimeout(10*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxConnections)
	sqldb.SetMaxIdleConns(cfg.MinConnections)
	sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)
	sqldb.SetConnMaxIdleTime(cfg.MaxIdleTime)

	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
	}

	registerModels(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping relational store: %w", err)
	}

	log.Info("relational store connection established", "max_conns", cfg.MaxConnections)
	return db, nil
}

func registerModels(db *bun.DB) {
	db.RegisterModel(
		(*WorkflowModel)(nil),
		(*WorkflowVersionModel)(nil),
		(*DashboardModel)(nil),
		(*WidgetModel)(nil),
		(*APIKeyModel)(nil),
	)
}

// WithTransaction runs fn inside a read-committed transaction.
func WithTransaction(ctx context.Context, db *bun.DB, fn func(tx bun.Tx) error) error {
	return db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(tx)
	})
}

// Health pings the database, used by the readiness probe.
func Health(ctx context.Context, db *bun.DB) error {
	return db.PingContext(ctx)
}
