package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mstrand/trainfleet/internal/models"
)

// SQLiteStore implements ResultStore on a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the result history database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema initializes the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		worker TEXT NOT NULL,
		worker_name TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		metrics TEXT,
		model_ref TEXT,
		error TEXT,
		completed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_job_id ON results(job_id);
	CREATE INDEX IF NOT EXISTS idx_results_completed_at ON results(completed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append inserts a reported result into the history
func (s *SQLiteStore) Append(ctx context.Context, result *models.JobResult) error {
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	query := `INSERT INTO results (job_id, worker, worker_name, success, metrics, model_ref, error, completed_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		result.JobID, result.WorkerAddress, result.WorkerName, result.Success,
		string(metrics), result.ModelRef, result.Error, result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append result: %w", err)
	}

	return nil
}

// Recent returns up to limit results, most recent first
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*models.JobResult, error) {
	query := `SELECT job_id, worker, worker_name, success, metrics, model_ref, error, completed_at
	          FROM results ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*models.JobResult
	for rows.Next() {
		result := &models.JobResult{}
		var metrics string
		if err := rows.Scan(&result.JobID, &result.WorkerAddress, &result.WorkerName,
			&result.Success, &metrics, &result.ModelRef, &result.Error, &result.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if metrics != "" && metrics != "null" {
			if err := json.Unmarshal([]byte(metrics), &result.Metrics); err != nil {
				return nil, fmt.Errorf("failed to decode metrics for job %s: %w", result.JobID, err)
			}
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// Count returns the total number of recorded results
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
