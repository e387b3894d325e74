// Package postgres runs SQL statements against PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/database"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "postgres"

const (
	KindRetryable  = "postgres.Retryable"
	KindConnection = "postgres.Connection"
	KindConstraint = "postgres.Constraint"
	KindPgError    = "postgres.PgError"
	KindNoRows     = "pgx.ErrNoRows"
)

type Config struct {
	database.PostgresConfig `mapstructure:",squash"`
	ConnectTimeout          time.Duration
	// Statements applied once, in order, before the first op. Each is recorded in VersionSequence so that
	// later runs skip it.
	Setup           []string
	VersionSequence string
}

// RetryableError wraps server errors that are expected to succeed when the transaction is tried again, such
// as serialization failures, deadlocks and resource exhaustion.
type RetryableError struct {
	SQLState string
	Err      *pgconn.PgError
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable postgres error %s: %s", e.SQLState, e.Err.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// ConnectionError means the statement never reached a usable connection.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "postgres connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConstraintError means the statement ran but an integrity constraint prevented it from taking effect.
type ConstraintError struct {
	SQLState   string
	Constraint string
	Err        *pgconn.PgError
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %s violated (%s): %s", e.Constraint, e.SQLState, e.Err.Message)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

type Driver struct {
	db *pgxpool.Pool
}

func New(settings map[string]any) (ops.Driver, error) {
	config := Config{
		ConnectTimeout:  10 * time.Second,
		VersionSequence: "cyclebench_schema_version",
	}
	if err := ops.DecodeSettings(settings, &config); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	db, err := database.OpenPgxPool(ctx, config.PostgresConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "connecting to postgres")
	}
	if len(config.Setup) > 0 {
		migrations := database.MigrationsFromStatements("setup", config.Setup)
		if err := database.UpdateDatabase(ctx, db, config.VersionSequence, migrations); err != nil {
			db.Close()
			return nil, err
		}
	}
	return NewWithPool(db), nil
}

func NewWithPool(db *pgxpool.Pool) *Driver {
	return &Driver{db: db}
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(r *errorhandling.KindRegistry) {
	errorhandling.Register[*RetryableError](r, errorhandling.KindSpec{Name: KindRetryable, Code: 50, Group: errorhandling.GroupRetryable})
	errorhandling.Register[*ConnectionError](r, errorhandling.KindSpec{Name: KindConnection, Code: 51, Group: errorhandling.GroupRetryable})
	errorhandling.Register[*ConstraintError](r, errorhandling.KindSpec{Name: KindConstraint, Code: 52, Group: errorhandling.GroupUnapplied})
	errorhandling.Register[*pgconn.PgError](r, errorhandling.KindSpec{Name: KindPgError, Code: 53})
	r.RegisterSentinel(errorhandling.KindSpec{Name: KindNoRows, Code: 54, Group: errorhandling.GroupUnverified}, pgx.ErrNoRows)
}

// NewDispenser accepts the fields described by ops.Statement, with $n placeholders.
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	statement, err := ops.ParseStatement(template)
	if err != nil {
		return nil, err
	}
	return &dispenser{db: d.db, name: template.Name, statement: statement}, nil
}

func (d *Driver) Close() error {
	d.db.Close()
	return nil
}

type dispenser struct {
	db        *pgxpool.Pool
	name      string
	statement ops.Statement
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	sql, args := d.statement.Bind(cycle)
	if d.statement.Query {
		return ops.OpFunc(func(ctx context.Context) (any, error) {
			var value any
			if err := d.db.QueryRow(ctx, sql, args...).Scan(&value); err != nil {
				return nil, classify(err)
			}
			return value, nil
		}), nil
	}
	expectRows := d.statement.ExpectRows
	return ops.OpFunc(func(ctx context.Context) (any, error) {
		tag, err := d.db.Exec(ctx, sql, args...)
		if err != nil {
			return nil, classify(err)
		}
		if tag.RowsAffected() < expectRows {
			return tag.RowsAffected(), &errorhandling.UnappliedError{
				Cycle:  cycle,
				Reason: fmt.Sprintf("%d rows affected, expected %d", tag.RowsAffected(), expectRows),
			}
		}
		return tag.RowsAffected(), nil
	}), nil
}

// classify maps a pgx error onto the driver's error types by SQLSTATE class.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Dial and socket failures surface as a wrapped *net.OpError. Timeouts keep their own kind.
		var opErr *net.OpError
		if errors.As(err, &opErr) && !opErr.Timeout() && !pgconn.Timeout(err) {
			return &ConnectionError{Err: err}
		}
		return err
	}
	switch code := pgErr.Code; {
	case pgerrcode.IsTransactionRollback(code),
		pgerrcode.IsInsufficientResources(code),
		pgerrcode.IsOperatorIntervention(code) && code != pgerrcode.QueryCanceled:
		return &RetryableError{SQLState: code, Err: pgErr}
	case pgerrcode.IsConnectionException(code):
		return &ConnectionError{Err: pgErr}
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return &ConstraintError{SQLState: code, Constraint: pgErr.ConstraintName, Err: pgErr}
	}
	return pgErr
}
