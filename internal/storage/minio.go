package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fortunemagnet/internal/config"
)

// minioStorage implements the Storage interface using an S3-compatible backend (MinIO, AWS S3, etc.).
// It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client *minio.Client
}

var _ Storage = (*minioStorage)(nil)

func newMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	// A fixed region keeps presigning local; otherwise minio-go looks the
	// bucket location up over the network first.
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return cli, nil
}

// NewMinIO creates a new S3-compatible storage client backed by MinIO.
// When ensureBucket is set it validates connectivity and creates the bucket if missing.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig, bucket string, ensureBucket bool) (Storage, error) {
	cli, err := newMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	if !ensureBucket {
		return &minioStorage{client: cli}, nil
	}
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &minioStorage{client: cli}, nil
}

// PresignUpload issues either a presigned PUT URL or a POST policy.
func (m *minioStorage) PresignUpload(ctx context.Context, bucket, key string, opt PresignUploadOptions) (UploadGrant, error) {
	expiresAt := time.Now().Add(opt.Expiry)

	if normalizeMethod(opt.Method) == MethodPOSTMultipart {
		policy := minio.NewPostPolicy()
		if err := policy.SetBucket(bucket); err != nil {
			return UploadGrant{}, err
		}
		if err := policy.SetKey(key); err != nil {
			return UploadGrant{}, err
		}
		if err := policy.SetExpires(expiresAt.UTC()); err != nil {
			return UploadGrant{}, err
		}
		if opt.ContentType != "" {
			if err := policy.SetContentType(opt.ContentType); err != nil {
				return UploadGrant{}, err
			}
		}
		if opt.MaxBytes > 0 {
			if err := policy.SetContentLengthRange(1, opt.MaxBytes); err != nil {
				return UploadGrant{}, err
			}
		}
		u, fields, err := m.client.PresignedPostPolicy(ctx, policy)
		if err != nil {
			return UploadGrant{}, fmt.Errorf("presign post policy: %w", err)
		}
		return UploadGrant{
			URL:           u.String(),
			Method:        MethodPOSTMultipart,
			FormFieldName: "file",
			FormFields:    fields,
			ExpiresAt:     expiresAt,
		}, nil
	}

	u, err := m.client.PresignedPutObject(ctx, bucket, key, opt.Expiry)
	if err != nil {
		return UploadGrant{}, fmt.Errorf("presign put: %w", err)
	}
	headers := map[string]string{}
	if opt.ContentType != "" {
		headers["Content-Type"] = opt.ContentType
	}
	return UploadGrant{
		URL:       u.String(),
		Method:    MethodPUT,
		Headers:   headers,
		ExpiresAt: expiresAt,
	}, nil
}

// PresignGet generates a pre-signed URL for GET with the specified expiry.
func (m *minioStorage) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Stat fetches object metadata.
func (m *minioStorage) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	st, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{
		Key:          key,
		Size:         st.Size,
		ETag:         st.ETag,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
	}, nil
}

// Delete removes an object by key.
func (m *minioStorage) Delete(ctx context.Context, bucket, key string) error {
	return m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}
