// Package cyclelog persists the result code of every resolved cycle to SQLite, so that a run can be inspected
// after it has finished.
package cyclelog

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/armadaproject/cyclebench/internal/common/ingest"
	log "github.com/armadaproject/cyclebench/internal/common/logging"
	"github.com/armadaproject/cyclebench/internal/common/util"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

var (
	resultsTable = goqu.T("cycle_results")
	cycleColumn  = goqu.C("cycle")
	codeColumn   = goqu.C("code")
)

// Keeps the bound parameters of a statement under SQLite's limit.
const maxResultsPerStatement = 1000

const schema = `CREATE TABLE IF NOT EXISTS cycle_results (
	cycle INTEGER PRIMARY KEY,
	code  INTEGER NOT NULL
)`

type Config struct {
	Path          string
	BatchSize     int
	BatchInterval time.Duration
}

type resultRow struct {
	Cycle int64 `db:"cycle"`
	Code  int   `db:"code"`
}

type codeCountRow struct {
	Code  int   `db:"code"`
	Count int64 `db:"count"`
}

// Log is a marker.SegmentSink that writes results in batches. Writes happen on a background goroutine; the first
// write error is returned by every later OnSegment call and by Close.
type Log struct {
	db      *DB
	input   chan marker.CycleResult
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	err     error
	written int64
	closed  bool
}

// Open creates the results table if needed and starts the writer.
func Open(config Config) (*Log, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 10000
	}
	if config.BatchInterval <= 0 {
		config.BatchInterval = time.Second
	}
	db, err := OpenDB(config.Path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Log{
		db:     db,
		input:  make(chan marker.CycleResult, config.BatchSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	batcher := ingest.NewBatcher[marker.CycleResult](l.input, config.BatchSize, config.BatchInterval, l.write)
	go func() {
		defer close(l.done)
		batcher.Run(ctx)
	}()
	log.Infof("Writing cycle results to %s", config.Path)
	return l, nil
}

// DB is an open cycle log database.
type DB struct {
	*goqu.Database
	sqlDB *sql.DB
}

func (d *DB) Close() error {
	return errors.WithStack(d.sqlDB.Close())
}

// OpenDB opens a cycle log database for reading or writing, creating the results table if needed.
func OpenDB(path string) (*DB, error) {
	dsn := "file:" + path
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "creating cycle log schema in %s", path)
	}
	return &DB{Database: goqu.New("sqlite3", db), sqlDB: db}, nil
}

func (l *Log) OnSegment(segment marker.Segment) error {
	if err := l.Err(); err != nil {
		return err
	}
	for _, result := range segment.Results() {
		l.input <- result
	}
	return nil
}

// Close writes any buffered results and closes the database.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return l.Err()
	}
	l.closed = true
	l.mu.Unlock()

	close(l.input)
	<-l.done
	l.cancel()
	if err := l.db.Close(); err != nil {
		l.setErr(err)
	}
	log.Infof("Wrote %d cycle results", l.Written())
	return l.Err()
}

func (l *Log) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Written is the number of results written so far.
func (l *Log) Written() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

func (l *Log) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

func (l *Log) write(batch []marker.CycleResult) {
	if l.Err() != nil {
		return
	}
	if err := WriteResults(context.Background(), l.db.Database, batch); err != nil {
		log.WithStacktrace(err).Errorf("Failed to write %d cycle results", len(batch))
		l.setErr(err)
		return
	}
	l.mu.Lock()
	l.written += int64(len(batch))
	l.mu.Unlock()
}

// WriteResults stores results in one transaction, replacing results already stored for the same cycles.
func WriteResults(ctx context.Context, db *goqu.Database, results []marker.CycleResult) error {
	if len(results) == 0 {
		return nil
	}
	return db.WithTx(func(tx *goqu.TxDatabase) error {
		for _, batch := range util.Batch(results, maxResultsPerStatement) {
			cycles := make([]interface{}, len(batch))
			rows := make([]interface{}, len(batch))
			for i, result := range batch {
				cycles[i] = result.Cycle
				rows[i] = resultRow{Cycle: result.Cycle, Code: int(result.Code)}
			}
			if _, err := tx.Delete(resultsTable).Where(cycleColumn.In(cycles...)).Executor().ExecContext(ctx); err != nil {
				return errors.WithStack(err)
			}
			if _, err := tx.Insert(resultsTable).Rows(rows...).Executor().ExecContext(ctx); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

// Results reads the stored results for [from,to) in cycle order.
func Results(ctx context.Context, db *goqu.Database, from, to int64) ([]marker.CycleResult, error) {
	var rows []resultRow
	err := db.From(resultsTable).
		Select(cycleColumn, codeColumn).
		Where(cycleColumn.Gte(from), cycleColumn.Lt(to)).
		Order(cycleColumn.Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	results := make([]marker.CycleResult, len(rows))
	for i, row := range rows {
		results[i] = marker.CycleResult{Cycle: row.Cycle, Code: marker.ResultCode(row.Code)}
	}
	return results, nil
}

// CodeCounts returns the number of stored results per result code.
func CodeCounts(ctx context.Context, db *goqu.Database) (map[marker.ResultCode]int64, error) {
	var rows []codeCountRow
	err := db.From(resultsTable).
		Select(codeColumn, goqu.COUNT(goqu.Star()).As("count")).
		GroupBy(codeColumn).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	counts := make(map[marker.ResultCode]int64, len(rows))
	for _, row := range rows {
		counts[marker.ResultCode(row.Code)] = row.Count
	}
	return counts, nil
}

// FirstMissing returns the lowest cycle in [from,to) without a stored result, or false if there is none.
func FirstMissing(ctx context.Context, db *goqu.Database, from, to int64) (int64, bool, error) {
	// A cycle c is stored and c+1 is not: c+1 is the start of a gap.
	query, _, err := db.From(resultsTable.As("r")).
		Select(goqu.MIN(goqu.L("r.cycle + 1"))).
		Where(
			goqu.I("r.cycle").Gte(from),
			goqu.I("r.cycle").Lt(to-1),
			goqu.L("NOT EXISTS ?", db.From(resultsTable.As("n")).
				Select(goqu.L("1")).
				Where(goqu.I("n.cycle").Eq(goqu.L("r.cycle + 1")))),
		).ToSQL()
	if err != nil {
		return 0, false, errors.WithStack(err)
	}
	stored, err := isStored(ctx, db, from)
	if err != nil {
		return 0, false, err
	}
	if !stored {
		return from, from < to, nil
	}
	var gap sql.NullInt64
	if err := db.QueryRowContext(ctx, query).Scan(&gap); err != nil {
		return 0, false, errors.WithStack(err)
	}
	if !gap.Valid {
		return 0, false, nil
	}
	return gap.Int64, true, nil
}

func isStored(ctx context.Context, db *goqu.Database, cycle int64) (bool, error) {
	var row resultRow
	found, err := db.From(resultsTable).Select(cycleColumn, codeColumn).Where(cycleColumn.Eq(cycle)).ScanStructContext(ctx, &row)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return found, nil
}
