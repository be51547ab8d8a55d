package postgres

import (
	"context"
	"database/sql"
	"time"

	"fortunemagnet/internal/model"
	"fortunemagnet/internal/repository"
)

// FortunePostgres reads fortunes and subscriptions.
type FortunePostgres struct {
	db *sql.DB
}

// NewFortunePostgres creates a new FortunePostgres repository.
func NewFortunePostgres(db *sql.DB) *FortunePostgres {
	return &FortunePostgres{db: db}
}

var (
	_ repository.FortuneRepository     = (*FortunePostgres)(nil)
	_ repository.EntitlementRepository = (*FortunePostgres)(nil)
)

// FindByID fetches a fortune's id and owner.
func (r *FortunePostgres) FindByID(ctx context.Context, id string) (*model.Fortune, error) {
	const q = `SELECT id, user_id FROM fortunes WHERE id = $1`
	var f model.Fortune
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.UserID); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindByUser fetches the subscription row for a user.
func (r *FortunePostgres) FindByUser(ctx context.Context, userID string) (*model.Entitlement, error) {
	const q = `
		SELECT user_id, status, lifetime_active, trial_ends_at
		FROM subscriptions
		WHERE user_id = $1
	`
	var (
		e        model.Entitlement
		trialEnd sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&e.UserID,
		&e.SubscriptionStatus,
		&e.LifetimeActive,
		&trialEnd,
	); err != nil {
		return nil, err
	}
	if trialEnd.Valid {
		t := trialEnd.Time.In(time.UTC)
		e.TrialEndsAt = &t
	}
	return &e, nil
}
