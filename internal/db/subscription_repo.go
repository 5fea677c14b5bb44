package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"billgate/internal/types"
)

// SubscriptionRepository manages subscription rows and enforces the
// one-active-subscription-per-tenant rule (supersession).
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by
// the given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, tenant_id, plan_name, billing_cycle, status, starts_at, ends_at, trial_ends_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var sub types.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.TenantID,
		&sub.PlanName,
		&sub.Cycle,
		&sub.Status,
		&sub.StartsAt,
		&sub.EndsAt,
		&sub.TrialEndsAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
	}
	return &sub, nil
}

// GetByID loads a subscription.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`,
		id,
	)
	return scanSubscription(row)
}

// Activate transitions a subscription to active: starts_at is stamped if it
// was not set (trial conversions keep their original start), ends_at is
// recomputed from the billing cycle, and any trial window is cleared so an
// activated subscription never reads as still trialing. Returns the updated
// row.
func (r *SubscriptionRepository) Activate(ctx context.Context, id int64) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     starts_at = COALESCE(starts_at, NOW()),
		     ends_at = NOW() + CASE billing_cycle WHEN $3 THEN INTERVAL '1 year' ELSE INTERVAL '1 month' END,
		     trial_ends_at = NULL,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING `+subscriptionColumns,
		types.SubStatusActive, id, types.CycleYearly,
	)
	return scanSubscription(row)
}

// SupersedeOthers cancels every active or trial subscription for the tenant
// except the one being activated, stamping ends_at. Returns the number of
// superseded rows.
func (r *SubscriptionRepository) SupersedeOthers(ctx context.Context, tenantID, keepID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1, ends_at = NOW(), updated_at = NOW()
		 WHERE tenant_id = $2
		   AND id <> $3
		   AND status IN ($4, $5)`,
		types.SubStatusCancelled, tenantID, keepID,
		types.SubStatusActive, types.SubStatusTrial,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to supersede subscriptions", err)
	}
	return tag.RowsAffected(), nil
}

// Cancel transitions a subscription to cancelled, stamping ends_at. Cancelling
// an already-cancelled subscription is a no-op.
func (r *SubscriptionRepository) Cancel(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1, ends_at = NOW(), updated_at = NOW()
		 WHERE id = $2 AND status <> $1`,
		types.SubStatusCancelled, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}
	return nil
}
