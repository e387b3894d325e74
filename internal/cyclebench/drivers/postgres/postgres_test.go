package postgres

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/common/database"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

func testClassifier(t *testing.T) *errorhandling.Classifier {
	t.Helper()
	registry := errorhandling.NewKindRegistry()
	(&Driver{}).RegisterKinds(registry)
	table, err := registry.Build()
	require.NoError(t, err)
	classifier, err := errorhandling.NewClassifier(table)
	require.NoError(t, err)
	return classifier
}

func TestClassify(t *testing.T) {
	classifier := testClassifier(t)
	tests := map[string]struct {
		err   error
		kind  string
		group string
	}{
		"serialization failure": {
			err:   &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			kind:  KindRetryable,
			group: errorhandling.GroupRetryable,
		},
		"deadlock": {
			err:   &pgconn.PgError{Code: pgerrcode.DeadlockDetected},
			kind:  KindRetryable,
			group: errorhandling.GroupRetryable,
		},
		"too many connections": {
			err:   &pgconn.PgError{Code: pgerrcode.TooManyConnections},
			kind:  KindRetryable,
			group: errorhandling.GroupRetryable,
		},
		"connection failure": {
			err:   &pgconn.PgError{Code: pgerrcode.ConnectionFailure},
			kind:  KindConnection,
			group: errorhandling.GroupRetryable,
		},
		"unique violation": {
			err:   &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "kv_pkey"},
			kind:  KindConstraint,
			group: errorhandling.GroupUnapplied,
		},
		"syntax error": {
			err:   errors.WithStack(&pgconn.PgError{Code: pgerrcode.SyntaxError}),
			kind:  KindPgError,
			group: errorhandling.CatchAllGroup,
		},
		"admin shutdown": {
			err:   &pgconn.PgError{Code: pgerrcode.AdminShutdown},
			kind:  KindRetryable,
			group: errorhandling.GroupRetryable,
		},
		"query canceled": {
			err:   &pgconn.PgError{Code: pgerrcode.QueryCanceled},
			kind:  KindPgError,
			group: errorhandling.CatchAllGroup,
		},
		"refused dial": {
			err: errors.Wrap(
				&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
				"failed to connect to `host=localhost user=postgres database=postgres`"),
			kind:  KindConnection,
			group: errorhandling.GroupRetryable,
		},
		"reset socket": {
			err:   fmt.Errorf("unexpected EOF: %w", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}),
			kind:  KindConnection,
			group: errorhandling.GroupRetryable,
		},
		"no rows": {
			err:   pgx.ErrNoRows,
			kind:  KindNoRows,
			group: errorhandling.GroupUnverified,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			classified := classify(tc.err)
			result := classifier.ClassifyDetailed(classified)
			require.NotNil(t, result.Kind)
			assert.Equal(t, tc.kind, result.Kind.Name)
			assert.Equal(t, tc.group, result.Group)
		})
	}
}

func TestClassify_TimeoutsAreNotConnectionErrors(t *testing.T) {
	classifier := testClassifier(t)
	dialTimeout := fmt.Errorf("failed to connect: %w", &net.OpError{Op: "dial", Net: "tcp", Err: os.ErrDeadlineExceeded})
	for name, err := range map[string]error{
		"dial timeout":      dialTimeout,
		"deadline exceeded": context.DeadlineExceeded,
	} {
		t.Run(name, func(t *testing.T) {
			classified := classify(err)
			var connectionErr *ConnectionError
			assert.False(t, errors.As(classified, &connectionErr))
			result := classifier.ClassifyDetailed(classified)
			require.NotNil(t, result.Kind)
			assert.NotEqual(t, KindConnection, result.Kind.Name)
			assert.Equal(t, errorhandling.GroupRetryable, result.Group)
		})
	}
}

func TestNewDispenser_Validation(t *testing.T) {
	driver := &Driver{}
	_, err := driver.NewDispenser(ops.OpTemplate{Name: "op"})
	assert.Error(t, err, "stmt is required")

	built, err := driver.NewDispenser(ops.OpTemplate{Name: "op", Fields: map[string]string{"stmt": " select $1", "params": "{cycle}"}})
	require.NoError(t, err)
	assert.True(t, built.(*dispenser).statement.Query)
	assert.Equal(t, "op", built.Name())
}

func TestPostgres_InsertThenSelect(t *testing.T) {
	database.WithTestDb(t, func(db *pgxpool.Pool) {
		ctx := context.Background()
		require.NoError(t, database.UpdateDatabase(ctx, db, "test_version", database.MigrationsFromStatements("setup", []string{
			"CREATE TABLE kv (k bigint primary key, v text)",
		})))
		driver := NewWithPool(db)

		insert, err := driver.NewDispenser(ops.OpTemplate{Name: "insert", Fields: map[string]string{
			"stmt":        "INSERT INTO kv (k, v) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			"params":      "{cycle}, value-{cycle}",
			"expect_rows": "1",
		}})
		require.NoError(t, err)
		op, err := insert.Op(3)
		require.NoError(t, err)
		rows, err := op.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		_, err = op.Apply(ctx)
		var unapplied *errorhandling.UnappliedError
		assert.ErrorAs(t, err, &unapplied, "the second insert conflicts")

		selectOp, err := driver.NewDispenser(ops.OpTemplate{Name: "select", Fields: map[string]string{
			"stmt":   "SELECT v FROM kv WHERE k = $1",
			"params": "{cycle}",
		}})
		require.NoError(t, err)
		op, err = selectOp.Op(3)
		require.NoError(t, err)
		value, err := op.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, "value-3", value)

		op, err = selectOp.Op(4)
		require.NoError(t, err)
		_, err = op.Apply(ctx)
		assert.Equal(t, pgx.ErrNoRows, err)
	})
}
