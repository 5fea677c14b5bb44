package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"billgate/internal/types"
)

// InvoiceRepository manages invoice rows. Status transitions applied here are
// monotonic: pending moves to paid or cancelled and never back.
type InvoiceRepository struct {
	db DBTX
}

// NewInvoiceRepository creates a new InvoiceRepository backed by the given
// database connection (pool or transaction).
func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, tenant_id, subscription_id, amount, status, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*types.Invoice, error) {
	var inv types.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.TenantID,
		&inv.SubscriptionID,
		&inv.Amount,
		&inv.Status,
		&inv.PaidAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundInvoice, "invoice not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan invoice", err)
	}
	return &inv, nil
}

// GetByID loads an invoice.
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*types.Invoice, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`,
		id,
	)
	return scanInvoice(row)
}

// GetForUpdate loads an invoice under a row-level lock. Concurrent deliveries
// of the same notification serialize on this lock, so only the first one
// observes the pending status.
func (r *InvoiceRepository) GetForUpdate(ctx context.Context, id int64) (*types.Invoice, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`,
		id,
	)
	return scanInvoice(row)
}

// MarkPaid transitions a pending invoice to paid, stamping paid_at. The WHERE
// clause guards the transition; zero rows affected means the invoice was not
// pending.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invoices
		 SET status = $1, paid_at = NOW(), updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		types.InvoiceStatusPaid, id, types.InvoiceStatusPending,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark invoice paid", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictState, "invoice is not pending", nil)
	}
	return nil
}

// CancelSupersededPending cancels open invoices belonging to the tenant's
// superseded subscriptions, so a tenant who upgraded mid-cycle is not still
// billed for the plan they left. Returns the number of invoices cancelled.
func (r *InvoiceRepository) CancelSupersededPending(ctx context.Context, tenantID, keepSubscriptionID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE invoices
		 SET status = $1, updated_at = NOW()
		 WHERE tenant_id = $2 AND subscription_id <> $3 AND status = $4`,
		types.InvoiceStatusCancelled, tenantID, keepSubscriptionID, types.InvoiceStatusPending,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel superseded invoices", err)
	}
	return tag.RowsAffected(), nil
}

// MarkCancelled transitions a pending invoice to cancelled.
func (r *InvoiceRepository) MarkCancelled(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invoices
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		types.InvoiceStatusCancelled, id, types.InvoiceStatusPending,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark invoice cancelled", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictState, "invoice is not pending", nil)
	}
	return nil
}
