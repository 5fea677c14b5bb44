package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"billgate/internal/types"
)

// PaymentRepository manages payment rows. A payment row is created pending by
// the checkout flow; notification processing settles, fails, or cancels it.
// Raw notification fields land in the row's metadata for audit.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new PaymentRepository backed by the given
// database connection (pool or transaction).
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, invoice_id, transaction_id, amount, method, status, metadata, created_at, updated_at`

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var (
		p        types.Payment
		metadata []byte
	)
	err := row.Scan(
		&p.ID,
		&p.InvoiceID,
		&p.TransactionID,
		&p.Amount,
		&p.Method,
		&p.Status,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode payment metadata", err)
		}
	}
	return &p, nil
}

func encodeMetadata(raw map[string]string) ([]byte, error) {
	if raw == nil {
		raw = map[string]string{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to encode payment metadata", err)
	}
	return data, nil
}

// FindPendingForInvoice loads the most recent pending payment for the
// invoice, locked for update. Checkout occasionally leaves several pending
// rows for one invoice (abandoned retries); the newest one is the attempt
// the notification settles. Returns pgx.ErrNoRows when no pending row exists.
func (r *PaymentRepository) FindPendingForInvoice(ctx context.Context, invoiceID int64) (*types.Payment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE invoice_id = $1 AND status = $2
		 ORDER BY created_at DESC
		 LIMIT 1
		 FOR UPDATE`,
		invoiceID, types.PaymentStatusPending,
	)
	return scanPayment(row)
}

// Settle completes a payment with the provider transaction id, gross amount,
// and raw notification metadata.
func (r *PaymentRepository) Settle(ctx context.Context, id int64, transactionID string, amount decimal.Decimal, raw map[string]string) error {
	metadata, err := encodeMetadata(raw)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`UPDATE payments
		 SET status = $1, transaction_id = $2, amount = $3, metadata = $4, updated_at = NOW()
		 WHERE id = $5`,
		types.PaymentStatusCompleted, transactionID, amount, metadata, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to settle payment", err)
	}
	return nil
}

// CreateCompleted inserts a completed payment row directly. Used when a
// verified notification arrives for an invoice that has no pending payment
// row (the checkout record was lost or never created).
func (r *PaymentRepository) CreateCompleted(ctx context.Context, invoiceID int64, transactionID, method string, amount decimal.Decimal, raw map[string]string) error {
	metadata, err := encodeMetadata(raw)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO payments (invoice_id, transaction_id, amount, method, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		invoiceID, transactionID, amount, method, types.PaymentStatusCompleted, metadata,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create completed payment", err)
	}
	return nil
}

// Fail marks a payment failed, annotating the metadata with the raw
// notification fields.
func (r *PaymentRepository) Fail(ctx context.Context, id int64, raw map[string]string) error {
	metadata, err := encodeMetadata(raw)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`UPDATE payments
		 SET status = $1, metadata = $2, updated_at = NOW()
		 WHERE id = $3`,
		types.PaymentStatusFailed, metadata, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark payment failed", err)
	}
	return nil
}

// CancelForSupersededSubscriptions cancels every pending payment whose
// invoice belongs to a subscription of the tenant other than the one being
// kept. Runs as part of the supersession cascade so superseded plans leave no
// open payment attempts behind. Returns the number of cancelled rows.
func (r *PaymentRepository) CancelForSupersededSubscriptions(ctx context.Context, tenantID, keepSubscriptionID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments
		 SET status = $1, updated_at = NOW()
		 WHERE status = $2
		   AND invoice_id IN (
		       SELECT id FROM invoices
		       WHERE tenant_id = $3 AND subscription_id <> $4
		   )`,
		types.PaymentStatusCancelled, types.PaymentStatusPending,
		tenantID, keepSubscriptionID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel superseded payments", err)
	}
	return tag.RowsAffected(), nil
}

// CancelPending cancels every pending payment for the invoice. Returns the
// number of cancelled rows.
func (r *PaymentRepository) CancelPending(ctx context.Context, invoiceID int64, raw map[string]string) (int64, error) {
	metadata, err := encodeMetadata(raw)
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE payments
		 SET status = $1, metadata = $2, updated_at = NOW()
		 WHERE invoice_id = $3 AND status = $4`,
		types.PaymentStatusCancelled, metadata, invoiceID, types.PaymentStatusPending,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel pending payments", err)
	}
	return tag.RowsAffected(), nil
}
