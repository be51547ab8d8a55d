package repository

import (
	"context"

	"fortunemagnet/internal/model"
)

// MediaRepository persists MediaRecords, one per fortune.
type MediaRepository interface {
	// FindByFortuneID returns the media record attached to a fortune.
	FindByFortuneID(ctx context.Context, fortuneID string) (*model.MediaRecord, error)

	// Upsert inserts the record or replaces the existing one for the same fortune.
	// Returns the stored record with database-assigned timestamps.
	Upsert(ctx context.Context, rec *model.MediaRecord) (*model.MediaRecord, error)

	// Delete removes the record for a fortune. Missing rows are not an error.
	Delete(ctx context.Context, fortuneID string) error
}
