package sqlitedriver

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	driver, err := Open(Config{Setup: []string{"CREATE TABLE kv (k INTEGER PRIMARY KEY, v TEXT NOT NULL)"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	return driver
}

func apply(t *testing.T, driver *Driver, fields map[string]string, cycle int64) (any, error) {
	t.Helper()
	dispenser, err := driver.NewDispenser(ops.OpTemplate{Name: "op", Fields: fields})
	require.NoError(t, err)
	op, err := dispenser.Op(cycle)
	require.NoError(t, err)
	return op.Apply(context.Background())
}

func testClassifier(t *testing.T, driver *Driver) *errorhandling.Classifier {
	t.Helper()
	registry := errorhandling.NewKindRegistry()
	driver.RegisterKinds(registry)
	table, err := registry.Build()
	require.NoError(t, err)
	classifier, err := errorhandling.NewClassifier(table)
	require.NoError(t, err)
	return classifier
}

func TestSqlite_WriteThenRead(t *testing.T) {
	driver := newTestDriver(t)
	insert := map[string]string{"stmt": "INSERT INTO kv (k, v) VALUES (?, ?)", "params": "{cycle}, value-{cycle}"}

	rows, err := apply(t, driver, insert, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	value, err := apply(t, driver, map[string]string{"stmt": "SELECT v FROM kv WHERE k = ?", "params": "{cycle}"}, 5)
	require.NoError(t, err)
	assert.Equal(t, "value-5", value)
}

func TestSqlite_ErrorsClassify(t *testing.T) {
	driver := newTestDriver(t)
	classifier := testClassifier(t, driver)
	insert := map[string]string{"stmt": "INSERT INTO kv (k, v) VALUES (?, ?)", "params": "{cycle}, v"}

	_, err := apply(t, driver, insert, 1)
	require.NoError(t, err)
	_, err = apply(t, driver, insert, 1)
	assert.IsType(t, &ConstraintError{}, err)
	assert.Equal(t, errorhandling.GroupUnapplied, classifier.Classify(err))

	_, err = apply(t, driver, map[string]string{"stmt": "SELECT v FROM kv WHERE k = ?", "params": "{cycle}"}, 99)
	assert.Equal(t, sql.ErrNoRows, err)
	assert.Equal(t, errorhandling.GroupUnverified, classifier.Classify(err))

	_, err = apply(t, driver, map[string]string{"stmt": "SELEC nonsense"}, 1)
	require.Error(t, err)
	result := classifier.ClassifyDetailed(err)
	require.NotNil(t, result.Kind)
	assert.Equal(t, KindError, result.Kind.Name)
	assert.Equal(t, errorhandling.CatchAllGroup, result.Group)
}

func TestSqlite_ExpectRows(t *testing.T) {
	driver := newTestDriver(t)
	update := map[string]string{"stmt": "UPDATE kv SET v = 'x' WHERE k = {cycle}", "expect_rows": "1"}

	_, err := apply(t, driver, update, 3)
	var unapplied *errorhandling.UnappliedError
	require.ErrorAs(t, err, &unapplied)
	assert.Equal(t, int64(3), unapplied.Cycle)
}

func TestSqlite_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bench.db")
	driver, err := New(map[string]any{"path": path, "setup": []string{"CREATE TABLE t (k INTEGER)"}})
	require.NoError(t, err)
	defer driver.Close()

	_, err = driver.(*Driver).DB().Exec("INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	assert.FileExists(t, path)
}
