package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fortunemagnet/internal/config"
)

// s3Storage implements Storage with the AWS SDK presign client.
type s3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
}

var _ Storage = (*s3Storage)(nil)

// NewS3 builds an AWS S3 backed Storage. Static credentials are used when
// configured, otherwise the SDK default credential chain applies.
func NewS3(ctx context.Context, cfg config.S3Config) (Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &s3Storage{client: client, presign: s3.NewPresignClient(client)}, nil
}

func (s *s3Storage) PresignUpload(ctx context.Context, bucket, key string, opt PresignUploadOptions) (UploadGrant, error) {
	expiresAt := time.Now().Add(opt.Expiry)
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if opt.ContentType != "" {
		in.ContentType = aws.String(opt.ContentType)
	}

	if normalizeMethod(opt.Method) == MethodPOSTMultipart {
		req, err := s.presign.PresignPostObject(ctx, in, func(o *s3.PresignPostOptions) {
			o.Expires = opt.Expiry
			if opt.MaxBytes > 0 {
				o.Conditions = append(o.Conditions, []interface{}{"content-length-range", 1, opt.MaxBytes})
			}
		})
		if err != nil {
			return UploadGrant{}, fmt.Errorf("presign post object: %w", err)
		}
		return UploadGrant{
			URL:           req.URL,
			Method:        MethodPOSTMultipart,
			FormFieldName: "file",
			FormFields:    req.Values,
			ExpiresAt:     expiresAt,
		}, nil
	}

	req, err := s.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(opt.Expiry))
	if err != nil {
		return UploadGrant{}, fmt.Errorf("presign put object: %w", err)
	}
	return UploadGrant{
		URL:       req.URL,
		Method:    MethodPUT,
		Headers:   signedHeaders(req.SignedHeader),
		ExpiresAt: expiresAt,
	}, nil
}

// signedHeaders keeps the headers the client must replay, minus Host which
// the HTTP stack sets on its own.
func signedHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		out[http.CanonicalHeaderKey(k)] = h.Get(k)
	}
	return out
}

func (s *s3Storage) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *s3Storage) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, err
	}
	info := ObjectInfo{
		Key:         key,
		ETag:        aws.ToString(out.ETag),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *s3Storage) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}
