package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/courtfile/media-ingest/internal/entity"
)

// Document is the searchable unit assembled by the orchestrator.
type Document struct {
	MediaID    string
	Title      string
	Transcript string
	Segments   []entity.TranscriptSegment
	Topics     []string
	Metadata   map[string]string
}

// Indexer is the search-index capability the pipeline writes to.
type Indexer interface {
	Index(ctx context.Context, doc Document) error
}

// FTSIndexer stores documents in the sqlite FTS5 table created by the
// archive store migration.
type FTSIndexer struct {
	db  *sql.DB
	log *slog.Logger
}

func NewFTSIndexer(db *sql.DB, log *slog.Logger) *FTSIndexer {
	if log == nil {
		log = slog.Default()
	}
	return &FTSIndexer{db: db, log: log}
}

// Index replaces any previous entry for the media item and inserts the new
// document.
func (x *FTSIndexer) Index(ctx context.Context, doc Document) error {
	if doc.MediaID == "" {
		return fmt.Errorf("index: document has no media id")
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transcripts_fts WHERE media_id = ?`, doc.MediaID); err != nil {
		return fmt.Errorf("index delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts_fts (media_id, title, transcript, topics) VALUES (?, ?, ?, ?)`,
		doc.MediaID, doc.Title, doc.Transcript, strings.Join(doc.Topics, " "),
	); err != nil {
		return fmt.Errorf("index insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index commit: %w", err)
	}

	x.log.Info("document indexed", "media_id", doc.MediaID, "topics", len(doc.Topics))
	return nil
}

// SearchHit is one full-text match.
type SearchHit struct {
	MediaID string
	Title   string
}

// Search runs an FTS5 match query, best first.
func (x *FTSIndexer) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := x.db.QueryContext(ctx, `
		SELECT media_id, title FROM transcripts_fts
		WHERE transcripts_fts MATCH ?
		ORDER BY rank LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.MediaID, &h.Title); err != nil {
			return nil, fmt.Errorf("search scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
