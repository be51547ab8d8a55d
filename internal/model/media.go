package model

import "time"

// MediaRecord is the finalized association between a fortune and its stored photo.
// There is at most one record per fortune; finalizing again replaces it.
type MediaRecord struct {
	FortuneID string    `json:"fortune_id"`
	Bucket    string    `json:"bucket"`
	Path      string    `json:"path"`
	MimeType  string    `json:"mime_type"`
	Width     *int      `json:"width,omitempty"`
	Height    *int      `json:"height,omitempty"`
	SizeBytes *int64    `json:"size_bytes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is a cache-busting token that changes whenever the photo is replaced.
func (m MediaRecord) Version() string {
	return m.UpdatedAt.UTC().Format(time.RFC3339Nano)
}
