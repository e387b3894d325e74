package database

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/common/util"
)

// TestConnectionEnv names the libpq connection string used by tests that need a real postgres.
const TestConnectionEnv = "CYCLEBENCH_TEST_POSTGRES"

// WithTestDb creates a dedicated database for the test, runs action against it and drops it afterwards.
// The test is skipped unless TestConnectionEnv is set.
func WithTestDb(t *testing.T, action func(db *pgxpool.Pool)) {
	t.Helper()
	connectionString := os.Getenv(TestConnectionEnv)
	if connectionString == "" {
		t.Skipf("%s is not set", TestConnectionEnv)
	}
	ctx := context.Background()

	dbName := "test_" + util.NewULID()
	admin, err := pgx.Connect(ctx, connectionString)
	require.NoError(t, err)
	defer admin.Close(ctx)
	_, err = admin.Exec(ctx, "CREATE DATABASE "+dbName)
	require.NoError(t, err)

	testDb, err := pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
	require.NoError(t, err)
	defer func() {
		testDb.Close()
		_, err := admin.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			t.Logf("Failed to drop database %s: %s", dbName, err)
		}
	}()
	action(testDb)
}
