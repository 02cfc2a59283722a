// Package postgres manages the PostgreSQL connection pool backing the
// postgres document store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nimburion/crudkit/pkg/observability/logger"
)

// PostgreSQLAdapter provides PostgreSQL database connectivity with connection pooling
type PostgreSQLAdapter struct {
	db     *sql.DB
	logger logger.Logger
	config Config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// NewPostgreSQLAdapter creates a new PostgreSQL adapter with connection pooling
func NewPostgreSQLAdapter(cfg Config, log logger.Logger) (*PostgreSQLAdapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("PostgreSQL connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
	)

	return NewPostgreSQLAdapterFromDB(db, cfg, log), nil
}

// NewPostgreSQLAdapterFromDB wraps an already opened pool. Pool settings in
// cfg are not applied.
func NewPostgreSQLAdapterFromDB(db *sql.DB, cfg Config, log logger.Logger) *PostgreSQLAdapter {
	if log == nil {
		log = logger.Nop()
	}
	return &PostgreSQLAdapter{db: db, logger: log, config: cfg}
}

// DB returns the underlying *sql.DB for direct access when needed
func (a *PostgreSQLAdapter) DB() *sql.DB {
	return a.db
}

// Ping verifies the database connection is alive
func (a *PostgreSQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// HealthCheck verifies the database connection is healthy with a timeout
func (a *PostgreSQLAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Error("PostgreSQL health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close gracefully closes the database connection
func (a *PostgreSQLAdapter) Close() error {
	a.logger.Info("closing PostgreSQL connection")

	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close PostgreSQL connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	a.logger.Info("PostgreSQL connection closed successfully")
	return nil
}

// WithTransaction runs fn inside a transaction carried by the context passed
// to fn. The transaction is rolled back when fn returns an error or panics
// and committed otherwise. Nested calls join the outer transaction.
func (a *PostgreSQLAdapter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := GetTx(ctx); ok {
		return fn(ctx)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Error("failed to rollback transaction after panic",
					"panic", p,
					"rollback_error", rbErr,
				)
			}
			panic(p)
		}
	}()

	txCtx := context.WithValue(ctx, txContextKey, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Error("failed to rollback transaction",
				"original_error", err,
				"rollback_error", rbErr,
			)
			return fmt.Errorf("failed to rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type contextKey string

const txContextKey contextKey = "tx"

// GetTx extracts a transaction from the context, if present
func GetTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey).(*sql.Tx)
	return tx, ok
}

// ExecContext executes a statement on the context transaction when present,
// otherwise on the pool.
func (a *PostgreSQLAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if tx, ok := GetTx(ctx); ok {
		return tx.ExecContext(queryCtx, query, args...)
	}
	return a.db.ExecContext(queryCtx, query, args...)
}

// QueryContext runs a query on the context transaction when present,
// otherwise on the pool. The returned cancel func must be called once rows
// are consumed; the query timeout stays in force until then.
func (a *PostgreSQLAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, context.CancelFunc, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	var (
		rows *sql.Rows
		err  error
	)
	if tx, ok := GetTx(ctx); ok {
		rows, err = tx.QueryContext(queryCtx, query, args...)
	} else {
		rows, err = a.db.QueryContext(queryCtx, query, args...)
	}
	if err != nil {
		cancel()
		return nil, func() {}, err
	}
	return rows, cancel, nil
}

// QueryRowScan runs a single-row query and scans it into dest.
func (a *PostgreSQLAdapter) QueryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if tx, ok := GetTx(ctx); ok {
		return tx.QueryRowContext(queryCtx, query, args...).Scan(dest...)
	}
	return a.db.QueryRowContext(queryCtx, query, args...).Scan(dest...)
}

func (a *PostgreSQLAdapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}
