package storage

import (
	"context"
	"errors"
	"time"
)

// Package storage contains object storage abstractions for S3-compatible backends.
// Objects are never read through this service: clients write with presigned upload
// grants and read with presigned GET URLs.

// ErrObjectNotFound is returned by Stat when the object does not exist (yet).
var ErrObjectNotFound = errors.New("object not found")

// Upload methods understood by PresignUpload.
const (
	MethodPUT           = "PUT"
	MethodPOSTMultipart = "POST_MULTIPART"
)

// PresignUploadOptions describe the single write a grant authorizes.
type PresignUploadOptions struct {
	ContentType string
	Method      string
	Expiry      time.Duration
	// MaxBytes bounds POST policy uploads; zero means no explicit bound.
	MaxBytes int64
}

// UploadGrant is a presigned write credential as issued by the backend.
type UploadGrant struct {
	URL           string
	Method        string
	Headers       map[string]string
	FormFieldName string
	FormFields    map[string]string
	ExpiresAt     time.Time
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Storage is the S3-compatible object storage client used by the photo service.
type Storage interface {
	// PresignUpload returns a time-limited credential to write one object.
	PresignUpload(ctx context.Context, bucket, key string, opt PresignUploadOptions) (UploadGrant, error)
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	// Stat returns object metadata or ErrObjectNotFound.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, bucket, key string) error
}

func normalizeMethod(m string) string {
	if m == MethodPOSTMultipart {
		return MethodPOSTMultipart
	}
	return MethodPUT
}
