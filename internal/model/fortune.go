package model

import "time"

// Fortune is the subset of a logged fortune event the photo pipeline needs.
type Fortune struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// Subscription status values that grant access to gated features.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
)

// Entitlement captures everything that decides whether a user may use photos.
type Entitlement struct {
	UserID             string
	SubscriptionStatus string
	LifetimeActive     bool
	TrialEndsAt        *time.Time
}

// Active reports whether the entitlement grants access at the given instant:
// a paid subscription in active/trialing state, an active lifetime plan, or
// a free trial window that has not ended.
func (e Entitlement) Active(now time.Time) bool {
	switch e.SubscriptionStatus {
	case SubscriptionActive, SubscriptionTrialing:
		return true
	}
	if e.LifetimeActive {
		return true
	}
	return e.TrialEndsAt != nil && now.Before(*e.TrialEndsAt)
}
