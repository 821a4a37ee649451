// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/metadata/db"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// Config holds SQL database connection configuration.
type Config struct {
	// DSN is the data source name
	DSN string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ConfigFrom converts the generic metadata config.
func ConfigFrom(cfg db.Config) Config {
	return Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTime) * time.Second,
	}
}

// Store is a dialect-aware SQL implementation of db.DB.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ db.DB = (*Store)(nil)

// NewStore wraps an open connection.
func NewStore(sqlDB *sqlx.DB, dialect Dialect) *Store {
	return &Store{
		db:      sqlDB,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder()),
	}
}

// Open opens a database connection and returns a configured Store.
func Open(dialect Dialect, cfg Config) (*Store, error) {
	dsn := cfg.DSN
	if dialect.Name() == "sqlite" && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	}

	sqlDB, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps transactions from
	// failing with SQLITE_BUSY instead of queueing.
	if dialect.Name() == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		sqlDB.SetMaxOpenConns(db.DefaultMaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		sqlDB.SetMaxIdleConns(db.DefaultMaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Duration(db.DefaultConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	} else {
		sqlDB.SetConnMaxIdleTime(time.Duration(db.DefaultConnMaxIdleTime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewStore(sqlDB, dialect), nil
}

// DB returns the underlying *sqlx.DB for direct access if needed.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect used by this store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats publishes connection pool gauges.
func (s *Store) Stats() {
	st := s.db.Stats()
	db.UpdateConnectionMetrics(st.InUse, st.Idle)
}

// withTx runs fn in a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// retryOnConflict reruns fn when two writers raced to insert the same row.
func (s *Store) retryOnConflict(fn func() error) error {
	var err error
	for range 3 {
		err = fn()
		if err == nil || !s.dialect.IsUniqueViolation(err) {
			return err
		}
	}
	return err
}

// ============================================================================
// Migrations
// ============================================================================

type migration struct {
	id  string
	sql string
}

func (s *Store) loadMigrations() ([]migration, error) {
	dir := "migrations/" + s.dialect.Name()
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(migrationsFS, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{id: strings.TrimSuffix(e.Name(), ".sql"), sql: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

// Migrate applies embedded migrations that have not run yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (id VARCHAR(255) PRIMARY KEY)"); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := s.loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		q, args, err := s.builder.Select("id").From("schema_migrations").Where(sq.Eq{"id": m.id}).ToSql()
		if err != nil {
			return err
		}
		var found string
		err = s.db.GetContext(ctx, &found, q, args...)
		switch err {
		case sql.ErrNoRows:
			logger.Debug().Str("migration", m.id).Str("dialect", s.dialect.Name()).Msg("running migration")
		case nil:
			continue
		default:
			return fmt.Errorf("looking up migration %s: %w", m.id, err)
		}

		err = s.withTx(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range strings.Split(m.sql, ";") {
				if strings.TrimSpace(stmt) == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %s: %w", m.id, err)
				}
			}
			q, args, err := s.builder.Insert("schema_migrations").Columns("id").Values(m.id).ToSql()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, q, args...)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
