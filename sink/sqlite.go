package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/use-agent/jobsnap/models"
	_ "modernc.org/sqlite"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		"key"         TEXT NOT NULL PRIMARY KEY,
		"captured_at" INTEGER NOT NULL,
		"records"     INTEGER NOT NULL,
		"body"        BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS snapshots_captured_at ON snapshots ("captured_at")`,
}

// SQLiteSink stores snapshots as rows of a single table.
type SQLiteSink struct {
	db     *sql.DB
	prefix string
}

// NewSQLiteSink opens (or creates) the database at dbPath.
func NewSQLiteSink(ctx context.Context, dbPath, prefix string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", dbPath, err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create snapshots table: %w", err)
		}
	}
	return &SQLiteSink{db: db, prefix: prefix}, nil
}

func (s *SQLiteSink) Persist(ctx context.Context, batch []models.JobRecord, capturedAt time.Time) (string, error) {
	key := Key(s.prefix, capturedAt)

	body, err := Encode(batch)
	if err != nil {
		return "", persistError(key, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots ("key", "captured_at", "records", "body") VALUES (?, ?, ?, ?) ON CONFLICT("key") DO NOTHING`,
		key, capturedAt.UnixMilli(), len(batch), body)
	if err != nil {
		return "", persistError(key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", persistError(key, ErrExists)
	}
	return key, nil
}

func (s *SQLiteSink) Latest(ctx context.Context) (string, []byte, error) {
	var (
		key  string
		body []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT "key", "body" FROM snapshots WHERE "key" LIKE ? ORDER BY "captured_at" DESC, "key" DESC LIMIT 1`,
		path.Join(s.prefix, "job_data_%"),
	).Scan(&key, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return key, body, nil
}

func (s *SQLiteSink) Get(ctx context.Context, name string) ([]byte, error) {
	if _, ok := ParseName(name); !ok {
		return nil, ErrNotFound
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT "body" FROM snapshots WHERE "key" = ?`, path.Join(s.prefix, name)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot %s: %w", name, err)
	}
	return body, nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }
