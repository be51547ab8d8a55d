package postgres

import (
	"context"
	"database/sql"

	"fortunemagnet/internal/model"
	"fortunemagnet/internal/repository"
)

// MediaPostgres is a PostgreSQL implementation of repository.MediaRepository.
type MediaPostgres struct {
	db *sql.DB
}

// NewMediaPostgres creates a new MediaPostgres repository.
func NewMediaPostgres(db *sql.DB) *MediaPostgres {
	return &MediaPostgres{db: db}
}

var _ repository.MediaRepository = (*MediaPostgres)(nil)

const mediaColumns = `fortune_id, bucket, path, mime_type, width, height, size_bytes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*model.MediaRecord, error) {
	var (
		m      model.MediaRecord
		width  sql.NullInt32
		height sql.NullInt32
		size   sql.NullInt64
	)
	if err := row.Scan(
		&m.FortuneID,
		&m.Bucket,
		&m.Path,
		&m.MimeType,
		&width,
		&height,
		&size,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if width.Valid {
		w := int(width.Int32)
		m.Width = &w
	}
	if height.Valid {
		h := int(height.Int32)
		m.Height = &h
	}
	if size.Valid {
		s := size.Int64
		m.SizeBytes = &s
	}
	return &m, nil
}

// FindByFortuneID fetches the media record for a fortune.
func (r *MediaPostgres) FindByFortuneID(ctx context.Context, fortuneID string) (*model.MediaRecord, error) {
	q := `SELECT ` + mediaColumns + ` FROM fortune_media WHERE fortune_id = $1`
	return scanMedia(r.db.QueryRowContext(ctx, q, fortuneID))
}

// Upsert writes the record keyed on fortune_id. created_at survives replacement.
func (r *MediaPostgres) Upsert(ctx context.Context, rec *model.MediaRecord) (*model.MediaRecord, error) {
	q := `
		INSERT INTO fortune_media (fortune_id, bucket, path, mime_type, width, height, size_bytes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (fortune_id) DO UPDATE SET
			bucket     = EXCLUDED.bucket,
			path       = EXCLUDED.path,
			mime_type  = EXCLUDED.mime_type,
			width      = EXCLUDED.width,
			height     = EXCLUDED.height,
			size_bytes = EXCLUDED.size_bytes,
			updated_at = now()
		RETURNING ` + mediaColumns
	row := r.db.QueryRowContext(ctx, q,
		rec.FortuneID,
		rec.Bucket,
		rec.Path,
		rec.MimeType,
		nullInt(rec.Width),
		nullInt(rec.Height),
		nullInt64(rec.SizeBytes),
	)
	return scanMedia(row)
}

// Delete removes the media record for a fortune.
func (r *MediaPostgres) Delete(ctx context.Context, fortuneID string) error {
	const q = `DELETE FROM fortune_media WHERE fortune_id = $1`
	_, err := r.db.ExecContext(ctx, q, fortuneID)
	return err
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
