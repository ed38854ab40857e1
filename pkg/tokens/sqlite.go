package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ UsageReporter = (*SQLiteRepository)(nil)

// OpenSQLite opens (creating if needed) the token database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?mode=rwc&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("could not open the database %s: %w", path, err)
	}
	// sqlite serialises writers anyway
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db}
	if err := repo.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) init(ctx context.Context) error {
	sqlStmt := `
	CREATE TABLE IF NOT EXISTS tokens (
		token text PRIMARY KEY,
		created bigint NOT NULL
	);
	`
	if _, err := r.db.ExecContext(ctx, sqlStmt); err != nil {
		return fmt.Errorf("could not create table tokens: %w", err)
	}

	sqlStmt = `
	CREATE TABLE IF NOT EXISTS usage (
		token text NOT NULL,
		at bigint NOT NULL,
		files int NOT NULL,
		bytes bigint NOT NULL
	);
	`
	if _, err := r.db.ExecContext(ctx, sqlStmt); err != nil {
		return fmt.Errorf("could not create table usage: %w", err)
	}

	sqlStmt = `CREATE INDEX IF NOT EXISTS usage_token_index ON usage (token);`
	if _, err := r.db.ExecContext(ctx, sqlStmt); err != nil {
		return fmt.Errorf("could not create index usage_token_index: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) AddToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tokens (token, created) VALUES (?, ?)`,
		token, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("adding token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM tokens WHERE token = ?`, token).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up token: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) RecordUsage(ctx context.Context, token string, usage Usage) error {
	if token == "" {
		return ErrEmptyToken
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage (token, at, files, bytes) VALUES (?, ?, ?, ?)`,
		token, usage.At.Unix(), usage.Files, int64(usage.Bytes))
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Totals(ctx context.Context, token string) (Totals, error) {
	var totals Totals
	var bytes int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(files), 0), COALESCE(SUM(bytes), 0) FROM usage WHERE token = ?`,
		token).Scan(&totals.Uploads, &totals.Files, &bytes)
	if err != nil {
		return totals, fmt.Errorf("summing usage: %w", err)
	}
	totals.Bytes = uint64(bytes)
	return totals, nil
}
