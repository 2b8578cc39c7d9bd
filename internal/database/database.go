// Package database opens the optional application database and synchronises
// the schemas of the models contributed by app modules.
package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrUnknownDriver is returned for drivers other than sqlite and postgres.
	ErrUnknownDriver = errors.New("unknown database driver")
)

// Config selects a driver and data source.
type Config struct {
	Driver string
	DSN    string
}

// Model is a data model whose table can be created on Sync.
type Model interface {
	// Name identifies the model; it usually matches its table.
	Name() string
	// Schema returns idempotent DDL ("CREATE TABLE IF NOT EXISTS ...").
	Schema() string
}

// DB wraps the connection pool and the models to synchronise.
type DB struct {
	db     *sqlx.DB
	logger *zap.Logger

	mu     sync.Mutex
	models map[string]Model
}

// Open connects using cfg and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	driver, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// an in-memory database exists per connection
		db.SetMaxOpenConns(1)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		db:     db,
		logger: logger,
		models: make(map[string]Model),
	}
}

func driverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql", "pg":
		return "postgres", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// SQL exposes the underlying pool to models.
func (d *DB) SQL() *sqlx.DB {
	return d.db
}

// Register adds models to synchronise.
func (d *DB) Register(models ...Model) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range models {
		if m == nil {
			continue
		}
		d.models[m.Name()] = m
	}
}

// Sync applies every registered model schema in one transaction, in model
// name order.
func (d *DB) Sync(ctx context.Context) error {
	d.mu.Lock()
	names := make([]string, 0, len(d.models))
	for name := range d.models {
		names = append(names, name)
	}
	models := make(map[string]Model, len(d.models))
	for k, v := range d.models {
		models[k] = v
	}
	d.mu.Unlock()
	sort.Strings(names)

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	for _, name := range names {
		schema := strings.TrimSpace(models[name].Schema())
		if schema == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sync model %s: %w", name, err)
		}
		d.logger.Debug("model synchronised", zap.String("model", name))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}
	return nil
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.db.Close()
}
