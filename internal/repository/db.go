package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Config holds archive store settings.
type Config struct {
	DBPath      string
	DialTimeout time.Duration
}

// Open opens the sqlite archive store and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening archive store", "path", cfg.DBPath)

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		logger.Error("failed to open archive store", "error", err)
		return nil, err
	}
	// sqlite tolerates one writer; keep the pool at a single connection.
	db.SetMaxOpenConns(1)

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping archive store", "error", err)
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		logger.Error("failed to apply schema", "error", err)
		_ = db.Close()
		return nil, err
	}

	logger.Info("archive store ready")
	return db, nil
}

// Close closes the store gracefully.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close archive store", "error", err)
		return
	}
	logger.Info("archive store closed")
}

// HealthCheck pings the store to catch path/permission issues early.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS media_items (
			id          TEXT PRIMARY KEY,
			source_path TEXT NOT NULL UNIQUE,
			title       TEXT NOT NULL,
			indexed     INTEGER NOT NULL DEFAULT 0,
			indexed_at  TIMESTAMP,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcription_jobs (
			id           TEXT PRIMARY KEY,
			media_id     TEXT NOT NULL REFERENCES media_items(id),
			remote_id    TEXT,
			status       TEXT NOT NULL,
			submitted_at TIMESTAMP,
			completed_at TIMESTAMP,
			retry_count  INTEGER NOT NULL DEFAULT 0,
			last_error   TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			media_id   TEXT PRIMARY KEY REFERENCES media_items(id),
			remote_id  TEXT,
			language   TEXT,
			full_text  TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS transcripts_fts USING fts5(
			media_id UNINDEXED,
			title,
			transcript,
			topics
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
