package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createExecutionLogs = `CREATE TABLE IF NOT EXISTS execution_logs (
	run_id TEXT PRIMARY KEY,
	user TEXT NOT NULL,
	provider TEXT NOT NULL,
	business_code TEXT NOT NULL,
	product_code TEXT NOT NULL,
	reference_code TEXT NOT NULL,
	image_count INTEGER NOT NULL,
	group_count INTEGER NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_jpy REAL NOT NULL,
	incomplete INTEGER NOT NULL,
	created_at TEXT NOT NULL
)`

// sqliteTimeLayout has a fixed width so text ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteHistory stores execution logs in a local SQLite file
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens (and creates) the database at path. ":memory:" works for tests.
func NewSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createExecutionLogs); err != nil {
		db.Close()
		return nil, fmt.Errorf("create execution_logs: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// SaveExecution implements HistoryStore
func (s *SQLiteHistory) SaveExecution(ctx context.Context, log ExecutionLog) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO execution_logs (
		run_id, user, provider, business_code, product_code, reference_code,
		image_count, group_count, input_tokens, output_tokens, total_tokens,
		cost_jpy, incomplete, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.RunID, log.User, log.Provider, log.BusinessCode, log.ProductCode, log.ReferenceCode,
		log.ImageCount, log.GroupCount, log.InputTokens, log.OutputTokens, log.TotalTokens,
		log.CostJPY, log.Incomplete, log.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	return nil
}

// RecentExecutions implements HistoryStore, newest first
func (s *SQLiteHistory) RecentExecutions(ctx context.Context, limit int) ([]ExecutionLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		run_id, user, provider, business_code, product_code, reference_code,
		image_count, group_count, input_tokens, output_tokens, total_tokens,
		cost_jpy, incomplete, created_at
	FROM execution_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query execution logs: %w", err)
	}
	defer rows.Close()

	var logs []ExecutionLog
	for rows.Next() {
		var (
			l       ExecutionLog
			created string
		)
		if err := rows.Scan(
			&l.RunID, &l.User, &l.Provider, &l.BusinessCode, &l.ProductCode, &l.ReferenceCode,
			&l.ImageCount, &l.GroupCount, &l.InputTokens, &l.OutputTokens, &l.TotalTokens,
			&l.CostJPY, &l.Incomplete, &created,
		); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		if l.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Close closes the database
func (s *SQLiteHistory) Close(context.Context) error {
	return s.db.Close()
}
