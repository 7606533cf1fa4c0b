package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// SQLite keeps summaries in a SQLite database.
type SQLite struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and its schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, optimization.ConfigErrorf("sqlite path is required").WithComponent("store")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{path: path, db: db}, nil
}

func (s *SQLite) Save(ctx context.Context, sum Summary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	var best []byte
	if sum.Best != nil {
		if best, err = json.Marshal(sum.Best); err != nil {
			return fmt.Errorf("encode best of %s: %w", sum.ID, err)
		}
	}

	var fitness sql.NullFloat64
	if sum.Fitness != nil && !math.IsInf(*sum.Fitness, 0) && !math.IsNaN(*sum.Fitness) {
		fitness = sql.NullFloat64{Float64: *sum.Fitness, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, algorithm, problem, grp, status, fitness, best,
			generations, evaluations, cancelled, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fitness = excluded.fitness,
			best = excluded.best,
			generations = excluded.generations,
			evaluations = excluded.evaluations,
			cancelled = excluded.cancelled,
			error = excluded.error,
			finished_at = excluded.finished_at
	`, sum.ID, sum.Algorithm, sum.Problem, sum.Group, sum.Status, fitness, best,
		sum.Generations, sum.Evaluations, sum.Cancelled, sum.Error,
		sum.CreatedAt.UnixNano(), sum.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save run %s: %w", sum.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Summary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Summary{}, false, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+columns+` FROM runs WHERE id = ?`, id)
	sum, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, false, nil
		}
		return Summary{}, false, fmt.Errorf("get run %s: %w", id, err)
	}
	return sum, true, nil
}

func (s *SQLite) List(ctx context.Context, f Filter) ([]Summary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []interface{}
	)
	if f.Algorithm != "" {
		where = append(where, "lower(algorithm) = lower(?)")
		args = append(args, f.Algorithm)
	}
	if f.Problem != "" {
		where = append(where, "lower(problem) = lower(?)")
		args = append(args, f.Problem)
	}

	query := `SELECT ` + columns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY finished_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		sum, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLite) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is closed")
	}
	return s.db, nil
}

const columns = `id, algorithm, problem, grp, status, fitness, best,
	generations, evaluations, cancelled, error, created_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (Summary, error) {
	var (
		sum               Summary
		fitness           sql.NullFloat64
		best              []byte
		created, finished int64
	)
	err := row.Scan(&sum.ID, &sum.Algorithm, &sum.Problem, &sum.Group, &sum.Status, &fitness, &best,
		&sum.Generations, &sum.Evaluations, &sum.Cancelled, &sum.Error, &created, &finished)
	if err != nil {
		return Summary{}, err
	}

	if fitness.Valid {
		f := fitness.Float64
		sum.Fitness = &f
	}
	if len(best) > 0 {
		if err := json.Unmarshal(best, &sum.Best); err != nil {
			return Summary{}, fmt.Errorf("decode best of %s: %w", sum.ID, err)
		}
	}
	sum.CreatedAt = time.Unix(0, created).UTC()
	sum.FinishedAt = time.Unix(0, finished).UTC()
	return sum, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			algorithm TEXT NOT NULL,
			problem TEXT NOT NULL,
			grp TEXT NOT NULL,
			status TEXT NOT NULL,
			fitness REAL,
			best BLOB,
			generations INTEGER NOT NULL,
			evaluations INTEGER NOT NULL,
			cancelled INTEGER NOT NULL,
			error TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_finished_at ON runs (finished_at);
	`)
	return err
}
