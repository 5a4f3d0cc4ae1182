// Package db keeps a SQLite log of completed runs. It is a record of
// results only; input data is never read back from it.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"factorlab/factor"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    tickers TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    observations INTEGER NOT NULL,
    kaiser INTEGER NOT NULL,
    cumulative INTEGER NOT NULL,
    configured INTEGER NOT NULL,
    chi_square REAL NOT NULL,
    p_value REAL NOT NULL,
    kmo REAL NOT NULL,
    passed INTEGER NOT NULL,
    reason TEXT DEFAULT '',
    r_squared REAL
);
CREATE TABLE IF NOT EXISTS run_eigenvalues (
    run_id INTEGER NOT NULL REFERENCES runs(id),
    position INTEGER NOT NULL,
    eigenvalue REAL NOT NULL,
    cumulative REAL NOT NULL,
    PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS run_loadings (
    run_id INTEGER NOT NULL REFERENCES runs(id),
    ticker TEXT NOT NULL,
    factor TEXT NOT NULL,
    loading REAL NOT NULL,
    PRIMARY KEY (run_id, ticker, factor)
);
CREATE TABLE IF NOT EXISTS run_coefficients (
    run_id INTEGER NOT NULL REFERENCES runs(id),
    term TEXT NOT NULL,
    coef REAL NOT NULL,
    std_err REAL NOT NULL,
    p_value REAL NOT NULL,
    PRIMARY KEY (run_id, term)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is one completed analysis. Loadings and Regression are nil when the
// factorability gate failed.
type Run struct {
	ID            int64
	StartedAt     time.Time
	Tickers       []string
	Start, End    time.Time
	Diagnostics   *factor.Diagnostics
	Configured    int
	Factorability *factor.Factorability
	Loadings      *factor.Loadings
	Regression    *factor.Regression
}

// RunSummary is a row of the runs table.
type RunSummary struct {
	ID           int64
	StartedAt    time.Time
	Tickers      []string
	Observations int
	Kaiser       int
	Cumulative   int
	Configured   int
	KMO          float64
	PValue       float64
	Passed       bool
	Reason       string
	// RSquared is NaN when no regression ran.
	RSquared float64
}

// Store 运行记录存储
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: conn}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes the run and its detail rows in one transaction and returns the run id.
func (s *Store) SaveRun(ctx context.Context, run *Run) (int64, error) {
	if run.Diagnostics == nil || run.Factorability == nil {
		return 0, fmt.Errorf("run is missing diagnostics or factorability results")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var rsq sql.NullFloat64
	if run.Regression != nil {
		rsq = sql.NullFloat64{Float64: run.Regression.RSquared, Valid: true}
	}
	f := run.Factorability
	res, err := tx.ExecContext(ctx, `INSERT INTO runs
        (started_at, tickers, start_date, end_date, observations, kaiser, cumulative, configured,
         chi_square, p_value, kmo, passed, reason, r_squared)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(),
		strings.Join(run.Tickers, ","),
		run.Start.Format("2006-01-02"),
		run.End.Format("2006-01-02"),
		f.Observations,
		run.Diagnostics.Kaiser,
		run.Diagnostics.Cumulative,
		run.Configured,
		f.ChiSquare,
		f.PValue,
		f.KMO,
		f.Passed,
		f.Reason,
		rsq,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	eig, err := tx.PrepareContext(ctx, `INSERT INTO run_eigenvalues (run_id, position, eigenvalue, cumulative) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer eig.Close()
	for i, v := range run.Diagnostics.Eigenvalues {
		if _, err := eig.ExecContext(ctx, id, i+1, v, run.Diagnostics.CumulativeVariance[i]); err != nil {
			return 0, fmt.Errorf("insert eigenvalue: %w", err)
		}
	}

	if l := run.Loadings; l != nil {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_loadings (run_id, ticker, factor, loading) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for i, ticker := range l.Variables {
			for j, name := range l.Factors {
				if _, err := stmt.ExecContext(ctx, id, ticker, name, l.Matrix[i][j]); err != nil {
					return 0, fmt.Errorf("insert loading: %w", err)
				}
			}
		}
	}

	if r := run.Regression; r != nil {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_coefficients (run_id, term, coef, std_err, p_value) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for _, t := range r.Terms {
			if _, err := stmt.ExecContext(ctx, id, t.Name, t.Coef, t.StdErr, t.P); err != nil {
				return 0, fmt.Errorf("insert coefficient: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, tickers, observations, kaiser, cumulative,
        configured, kmo, p_value, passed, reason, r_squared
        FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			tickers string
			rsq     sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &tickers, &r.Observations, &r.Kaiser, &r.Cumulative,
			&r.Configured, &r.KMO, &r.PValue, &r.Passed, &r.Reason, &rsq); err != nil {
			return nil, err
		}
		r.Tickers = strings.Split(tickers, ",")
		r.RSquared = math.NaN()
		if rsq.Valid {
			r.RSquared = rsq.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Loadings returns the stored loadings of a run keyed by ticker then factor.
func (s *Store) Loadings(ctx context.Context, runID int64) (map[string]map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, factor, loading FROM run_loadings WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var ticker, name string
		var v float64
		if err := rows.Scan(&ticker, &name, &v); err != nil {
			return nil, err
		}
		if out[ticker] == nil {
			out[ticker] = make(map[string]float64)
		}
		out[ticker][name] = v
	}
	return out, rows.Err()
}

// Coefficients returns the stored regression terms of a run in insertion order.
func (s *Store) Coefficients(ctx context.Context, runID int64) ([]factor.Term, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT term, coef, std_err, p_value FROM run_coefficients WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []factor.Term
	for rows.Next() {
		var t factor.Term
		if err := rows.Scan(&t.Name, &t.Coef, &t.StdErr, &t.P); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
