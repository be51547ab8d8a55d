package mocks

import (
	"context"

	"fortunemagnet/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockFortuneRepository struct {
	mock.Mock
}

func (m *MockFortuneRepository) FindByID(ctx context.Context, id string) (*model.Fortune, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Fortune), args.Error(1)
}

type MockEntitlementRepository struct {
	mock.Mock
}

func (m *MockEntitlementRepository) FindByUser(ctx context.Context, userID string) (*model.Entitlement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entitlement), args.Error(1)
}

type MockMediaRepository struct {
	mock.Mock
}

func (m *MockMediaRepository) FindByFortuneID(ctx context.Context, fortuneID string) (*model.MediaRecord, error) {
	args := m.Called(ctx, fortuneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaRecord), args.Error(1)
}

func (m *MockMediaRepository) Upsert(ctx context.Context, rec *model.MediaRecord) (*model.MediaRecord, error) {
	args := m.Called(ctx, rec)
	if f, ok := args.Get(0).(func(context.Context, *model.MediaRecord) *model.MediaRecord); ok {
		return f(ctx, rec), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaRecord), args.Error(1)
}

func (m *MockMediaRepository) Delete(ctx context.Context, fortuneID string) error {
	args := m.Called(ctx, fortuneID)
	return args.Error(0)
}
