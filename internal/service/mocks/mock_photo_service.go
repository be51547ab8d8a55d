package mocks

import (
	"context"
	"time"

	"fortunemagnet/internal/model"
	"fortunemagnet/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockPhotoService struct {
	mock.Mock
}

func (m *MockPhotoService) IssueTicket(ctx context.Context, userID string, in service.TicketInput) (*model.UploadTicket, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadTicket), args.Error(1)
}

func (m *MockPhotoService) Finalize(ctx context.Context, userID string, in service.FinalizeInput) (*service.FinalizeResult, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FinalizeResult), args.Error(1)
}

func (m *MockPhotoService) SignOnly(ctx context.Context, userID, fortuneID string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, userID, fortuneID, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockPhotoService) GetMedia(ctx context.Context, userID, fortuneID string) (*model.MediaRecord, error) {
	args := m.Called(ctx, userID, fortuneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaRecord), args.Error(1)
}

func (m *MockPhotoService) DeletePhoto(ctx context.Context, userID, fortuneID string) error {
	args := m.Called(ctx, userID, fortuneID)
	return args.Error(0)
}
