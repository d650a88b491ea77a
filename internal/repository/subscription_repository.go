package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// SubscriptionRepo reads plan rows used as authorization input.
type SubscriptionRepo struct{ db *sql.DB }

func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

const qActiveSubscription = `SELECT id, user_id, plan, is_active, starts_at, expires_at, auto_renew
	FROM subscriptions
	WHERE user_id = ? AND is_active = 1 AND starts_at <= ? AND (expires_at IS NULL OR expires_at > ?)
	ORDER BY starts_at DESC, id DESC LIMIT 1`

// Active returns the subscription in force at now, or ErrNotFound.
func (r *SubscriptionRepo) Active(ctx context.Context, userID uint64, now time.Time) (model.Subscription, error) {
	var (
		s       model.Subscription
		plan    string
		expires sql.NullTime
	)
	now = now.UTC()
	err := r.db.QueryRowContext(ctx, qActiveSubscription, userID, now, now).
		Scan(&s.ID, &s.UserID, &plan, &s.Active, &s.StartsAt, &expires, &s.AutoRenew)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, ErrNotFound
	}
	if err != nil {
		return model.Subscription{}, errors.Wrap(err, "load subscription")
	}
	if s.Plan, err = model.ParsePlan(plan); err != nil {
		return model.Subscription{}, err
	}
	if expires.Valid {
		t := expires.Time
		s.ExpiresAt = &t
	}
	return s, nil
}
