// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package sql provides a dialect-aware SQL metadata store.
// It abstracts the differences between SQLite, PostgreSQL and MySQL,
// allowing a single implementation to support all three.
package sql

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	// database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect abstracts database-specific SQL differences.
type Dialect interface {
	// Name returns the dialect name, which is also its migrations directory.
	Name() string

	// DriverName returns the database/sql driver to open.
	DriverName() string

	// Placeholder returns the squirrel placeholder format.
	// PostgreSQL: "$1", "$2"; SQLite/MySQL: "?"
	Placeholder() sq.PlaceholderFormat

	// ForUpdate returns the row-locking suffix for SELECTs inside a transaction.
	// SQLite: "" (transactions take the database write lock up front)
	ForUpdate() string

	// IsUniqueViolation reports whether err is a primary key or unique conflict.
	IsUniqueViolation(err error) bool
}

// DialectFor returns the dialect for a driver name.
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case "sqlite", "sqlite3":
		return SQLiteDialect{}, true
	case "postgres", "pgx":
		return PostgresDialect{}, true
	case "mysql":
		return MySQLDialect{}, true
	}
	return nil, false
}

// ============================================================================
// SQLite Dialect
// ============================================================================

// SQLiteDialect implements Dialect for SQLite via mattn/go-sqlite3.
type SQLiteDialect struct{}

var _ Dialect = SQLiteDialect{}

func (SQLiteDialect) Name() string { return "sqlite" }
func (SQLiteDialect) DriverName() string { return "sqlite3" }
func (SQLiteDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (SQLiteDialect) ForUpdate() string { return "" }

func (SQLiteDialect) IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// ============================================================================
// PostgreSQL Dialect
// ============================================================================

// PostgresDialect implements Dialect for PostgreSQL via pgx.
type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

func (PostgresDialect) Name() string { return "postgres" }
func (PostgresDialect) DriverName() string { return "pgx" }
func (PostgresDialect) Placeholder() sq.PlaceholderFormat { return sq.Dollar }
func (PostgresDialect) ForUpdate() string { return "FOR UPDATE" }

func (PostgresDialect) IsUniqueViolation(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}

// ============================================================================
// MySQL Dialect
// ============================================================================

// MySQLDialect implements Dialect for MySQL.
type MySQLDialect struct{}

var _ Dialect = MySQLDialect{}

func (MySQLDialect) Name() string { return "mysql" }
func (MySQLDialect) DriverName() string { return "mysql" }
func (MySQLDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (MySQLDialect) ForUpdate() string { return "FOR UPDATE" }

func (MySQLDialect) IsUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
