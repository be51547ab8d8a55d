package repository

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
// Lookups that find nothing return sql.ErrNoRows unchanged; callers map it.

import (
	"context"

	"fortunemagnet/internal/model"
)

// FortuneRepository reads the fortune rows owned by the main application.
type FortuneRepository interface {
	// FindByID returns the fortune with its owning user.
	FindByID(ctx context.Context, id string) (*model.Fortune, error)
}

// EntitlementRepository reads subscription state for a user.
type EntitlementRepository interface {
	// FindByUser returns the entitlement row for the user.
	FindByUser(ctx context.Context, userID string) (*model.Entitlement, error)
}
