package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"billgate/internal/types"
)

// TenantRepository manages tenant rows, including the denormalized billing
// mirror (plan name, cycle, subscription status) kept in sync with the
// tenant's active subscription.
type TenantRepository struct {
	db DBTX
}

// NewTenantRepository creates a new TenantRepository backed by the given
// database connection (pool or transaction).
func NewTenantRepository(db DBTX) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, name, email, plan_name, billing_cycle, subscription_status, created_at, updated_at`

func scanTenant(row pgx.Row) (*types.Tenant, error) {
	var t types.Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Email,
		&t.PlanName,
		&t.BillingCycle,
		&t.SubscriptionStatus,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tenant", err)
	}
	return &t, nil
}

// GetByID loads a tenant.
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*types.Tenant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`,
		id,
	)
	return scanTenant(row)
}

// SyncBillingMirror writes the denormalized subscription fields onto the
// tenant row and returns the updated tenant. The subscriptions table remains
// the source of truth; this mirror is a read optimization for dashboards.
func (r *TenantRepository) SyncBillingMirror(ctx context.Context, tenantID int64, planName string, cycle types.BillingCycle, status types.SubscriptionStatus) (*types.Tenant, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE tenants
		 SET plan_name = $1, billing_cycle = $2, subscription_status = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING `+tenantColumns,
		planName, cycle, status, tenantID,
	)
	return scanTenant(row)
}
