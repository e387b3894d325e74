// Package sqlitedriver runs SQL statements against an embedded SQLite database (modernc.org/sqlite).
package sqlitedriver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "sqlite"

const (
	KindError      = "sqlite.Error"
	KindBusy       = "sqlite.Busy"
	KindConstraint = "sqlite.Constraint"
	KindNoRows     = "sql.ErrNoRows"
)

type Config struct {
	// Database file. Defaults to a private in-memory database.
	Path         string
	BusyTimeout  time.Duration
	MaxOpenConns int
	// Statements executed in order when the driver is created.
	Setup []string
}

// BusyError means the database was locked by another connection.
type BusyError struct {
	Err *sqlite.Error
}

func (e *BusyError) Error() string {
	return "sqlite busy: " + e.Err.Error()
}

func (e *BusyError) Unwrap() error {
	return e.Err
}

// ConstraintError means a constraint stopped the statement from taking effect.
type ConstraintError struct {
	Err *sqlite.Error
}

func (e *ConstraintError) Error() string {
	return "sqlite constraint: " + e.Err.Error()
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

type Driver struct {
	db *sql.DB
}

func New(settings map[string]any) (ops.Driver, error) {
	config := Config{BusyTimeout: 5 * time.Second}
	if err := ops.DecodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return Open(config)
}

func Open(config Config) (*Driver, error) {
	dsn := "file::memory:"
	maxOpenConns := config.MaxOpenConns
	if config.Path != "" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
		dsn = "file:" + config.Path
	} else {
		// Every connection to :memory: is a separate database.
		maxOpenConns = 1
	}
	dsn += fmt.Sprintf("?_pragma=busy_timeout(%d)", config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sqlite database %s", dsn)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	for _, stmt := range config.Setup {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "running setup statement %q", stmt)
		}
	}
	return &Driver{db: db}, nil
}

// DB exposes the underlying database, e.g. to inspect results in tests.
func (d *Driver) DB() *sql.DB {
	return d.db
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(r *errorhandling.KindRegistry) {
	errorhandling.Register[*sqlite.Error](r, errorhandling.KindSpec{Name: KindError, Code: 60})
	errorhandling.Register[*BusyError](r, errorhandling.KindSpec{Name: KindBusy, Code: 61, Group: errorhandling.GroupRetryable})
	errorhandling.Register[*ConstraintError](r, errorhandling.KindSpec{Name: KindConstraint, Code: 62, Group: errorhandling.GroupUnapplied})
	r.RegisterSentinel(errorhandling.KindSpec{Name: KindNoRows, Code: 63, Group: errorhandling.GroupUnverified}, sql.ErrNoRows)
}

// NewDispenser accepts the fields described by ops.Statement, with ? placeholders.
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	statement, err := ops.ParseStatement(template)
	if err != nil {
		return nil, err
	}
	return &dispenser{db: d.db, name: template.Name, statement: statement}, nil
}

func (d *Driver) Close() error {
	return errors.WithStack(d.db.Close())
}

type dispenser struct {
	db        *sql.DB
	name      string
	statement ops.Statement
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	stmt, args := d.statement.Bind(cycle)
	if d.statement.Query {
		return ops.OpFunc(func(ctx context.Context) (any, error) {
			var value any
			if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&value); err != nil {
				return nil, classify(err)
			}
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			return value, nil
		}), nil
	}
	expectRows := d.statement.ExpectRows
	return ops.OpFunc(func(ctx context.Context) (any, error) {
		result, err := d.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, classify(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if rows < expectRows {
			return rows, &errorhandling.UnappliedError{
				Cycle:  cycle,
				Reason: fmt.Sprintf("%d rows affected, expected %d", rows, expectRows),
			}
		}
		return rows, nil
	}), nil
}

// classify maps errors by primary result code; extended codes carry the primary code in the low byte.
func classify(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return &BusyError{Err: sqliteErr}
	case sqlite3.SQLITE_CONSTRAINT:
		return &ConstraintError{Err: sqliteErr}
	}
	return sqliteErr
}
