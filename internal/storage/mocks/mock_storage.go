package mocks

import (
	"context"
	"time"

	"fortunemagnet/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) PresignUpload(ctx context.Context, bucket, key string, opt storage.PresignUploadOptions) (storage.UploadGrant, error) {
	args := m.Called(ctx, bucket, key, opt)
	if f, ok := args.Get(0).(func(context.Context, string, string, storage.PresignUploadOptions) storage.UploadGrant); ok {
		return f(ctx, bucket, key, opt), args.Error(1)
	}
	return args.Get(0).(storage.UploadGrant), args.Error(1)
}

func (m *MockStorage) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	args := m.Called(ctx, bucket, key)
	return args.Get(0).(storage.ObjectInfo), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}
