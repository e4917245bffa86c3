package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courtfile/media-ingest/internal/common"
	"github.com/courtfile/media-ingest/internal/entity"
)

// MediaRepository persists media-item metadata.
type MediaRepository interface {
	UpsertFromPath(ctx context.Context, sourcePath, title string) (*entity.MediaItem, error)
	GetByID(ctx context.Context, id string) (*entity.MediaItem, error)
	MarkIndexed(ctx context.Context, id string, at time.Time) error
}

type mediaRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewMediaRepository(db *sql.DB, log *slog.Logger) MediaRepository {
	if log == nil {
		log = slog.Default()
	}
	return &mediaRepo{db: db, log: log}
}

// UpsertFromPath registers a media file, returning the existing row when the
// path was seen before (re-ingestion of the same file updates, not
// duplicates).
func (r *mediaRepo) UpsertFromPath(ctx context.Context, sourcePath, title string) (*entity.MediaItem, error) {
	now := time.Now().UTC()
	item := &entity.MediaItem{
		ID:         uuid.New().String(),
		SourcePath: sourcePath,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media_items (id, source_path, title, indexed, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		item.ID, sourcePath, title, now, now,
	)
	if err != nil {
		r.log.Error("media upsert failed", "source_path", sourcePath, "err", err)
		return nil, fmt.Errorf("upsert media: %w", err)
	}

	// Re-read to pick up the canonical row (conflict keeps the original id).
	existing, err := r.getBySourcePath(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	r.log.Info("media registered", "media_id", existing.ID, "source_path", sourcePath)
	return existing, nil
}

func (r *mediaRepo) GetByID(ctx context.Context, id string) (*entity.MediaItem, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, source_path, title, indexed, indexed_at, created_at, updated_at
		FROM media_items WHERE id = ?`, id))
}

func (r *mediaRepo) getBySourcePath(ctx context.Context, sourcePath string) (*entity.MediaItem, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, source_path, title, indexed, indexed_at, created_at, updated_at
		FROM media_items WHERE source_path = ?`, sourcePath))
}

func (r *mediaRepo) scanOne(row *sql.Row) (*entity.MediaItem, error) {
	var item entity.MediaItem
	var indexed int
	var indexedAt sql.NullTime
	err := row.Scan(&item.ID, &item.SourcePath, &item.Title, &indexed, &indexedAt, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan media: %w", err)
	}
	item.Indexed = indexed != 0
	if indexedAt.Valid {
		t := indexedAt.Time
		item.IndexedAt = &t
	}
	return &item, nil
}

// MarkIndexed records that the item's transcript reached the search index.
func (r *mediaRepo) MarkIndexed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE media_items SET indexed = 1, indexed_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		r.log.Error("media mark-indexed failed", "media_id", id, "err", err)
		return fmt.Errorf("mark indexed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	r.log.Info("media marked indexed", "media_id", id)
	return nil
}
