// Package store persists finished runs in a SQLite database so that QBER
// series can be compared across invocations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alan-christopher/qkdsim/qkd/sim"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("store: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	protocol     TEXT NOT NULL,
	cycles       INTEGER NOT NULL,
	qubits       INTEGER NOT NULL,
	eve          INTEGER NOT NULL,
	seed         INTEGER NOT NULL,
	empty_keys   INTEGER NOT NULL,
	mean         REAL NOT NULL,
	rounded_mean REAL NOT NULL,
	started_at   TEXT NOT NULL,
	elapsed_ns   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_protocol ON runs(protocol, started_at);
CREATE TABLE IF NOT EXISTS cycle_qbers (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	qber     REAL NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// A Run is the stored summary of one simulation run.
type Run struct {
	ID          string
	Protocol    string
	Cycles      int
	Qubits      int
	Eve         bool
	Seed        int64
	EmptyKeys   int
	Mean        float64
	RoundedMean float64
	Started     time.Time
	Elapsed     time.Duration
}

// A Store is a SQLite-backed run history. It implements sim.Reporter.
type Store struct {
	conn *sql.DB
	path string

	// Overridable for tests.
	newID func() string
}

var _ sim.Reporter = (*Store)(nil)

// Open opens, creating if needed, the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &Store{
		conn:  conn,
		path:  path,
		newID: func() string { return uuid.NewString() },
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Report saves res and its QBER series in one transaction.
func (s *Store) Report(ctx context.Context, res *sim.RunResult) error {
	_, err := s.Save(ctx, res)
	return err
}

// Save stores res and returns the id it was stored under.
func (s *Store) Save(ctx context.Context, res *sim.RunResult) (string, error) {
	id := s.newID()
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, protocol, cycles, qubits, eve, seed, empty_keys, mean, rounded_mean, started_at, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.Protocol, len(res.Cycles), res.Config.Qubits, res.Config.Eve, res.Config.Seed,
		res.EmptyKeys, res.Mean, res.RoundedMean, res.Started.UTC().Format(time.RFC3339Nano),
		int64(res.Elapsed))
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cycle_qbers (run_id, position, qber) VALUES (?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing qber insert: %w", err)
	}
	defer stmt.Close()
	for i, q := range res.QBERs {
		if _, err := stmt.ExecContext(ctx, id, i, q); err != nil {
			return "", fmt.Errorf("inserting qber %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return id, nil
}

// Runs returns the stored runs, newest first. An empty protocol matches every
// protocol; otherwise the match ignores case.
func (s *Store) Runs(ctx context.Context, protocol string) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT
		id, protocol, cycles, qubits, eve, seed, empty_keys, mean, rounded_mean, started_at, elapsed_ns
		FROM runs
		WHERE ? = '' OR lower(protocol) = lower(?)
		ORDER BY started_at DESC, rowid DESC`, protocol, protocol)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var elapsed int64
		if err := rows.Scan(&r.ID, &r.Protocol, &r.Cycles, &r.Qubits, &r.Eve, &r.Seed,
			&r.EmptyKeys, &r.Mean, &r.RoundedMean, &started, &elapsed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing start of run %s: %w", r.ID, err)
		}
		r.Elapsed = time.Duration(elapsed)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// QBERs returns the QBER series of run id in cycle order.
func (s *Store) QBERs(ctx context.Context, id string) ([]float64, error) {
	var exists int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("looking up run %s: %w", id, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT qber FROM cycle_qbers WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying qbers: %w", err)
	}
	defer rows.Close()
	qbers := []float64{}
	for rows.Next() {
		var q float64
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scanning qber: %w", err)
		}
		qbers = append(qbers, q)
	}
	return qbers, rows.Err()
}
