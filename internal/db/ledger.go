package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"billgate/internal/gateway"
	"billgate/internal/types"
)

// Ledger implements the dispatcher's billing port over PostgreSQL. Every
// Apply call runs in a single transaction opened by the TxRunner, with a
// row-level lock on the invoice taken first, so concurrent deliveries of the
// same notification serialize and exactly one of them mutates.
type Ledger struct {
	runner TxRunner
	db     DBTX
	logger *slog.Logger
}

// NewLedger creates a Ledger. The db handle serves non-transactional reads;
// the runner opens transactions for mutations.
func NewLedger(runner TxRunner, db DBTX, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{runner: runner, db: db, logger: logger}
}

// FindInvoice loads the invoice a notification claims to settle. Read-only,
// outside any transaction: the verification gates that follow take long
// enough (a provider round trip) that holding a lock here would serialize
// unrelated deliveries.
func (l *Ledger) FindInvoice(ctx context.Context, invoiceID int64) (*types.Invoice, error) {
	return NewInvoiceRepository(l.db).GetByID(ctx, invoiceID)
}

// ApplyComplete settles an invoice after a fully verified COMPLETE
// notification. Within one transaction it:
//
//  1. Re-reads the invoice under FOR UPDATE (the gate-time read was
//     lock-free and may be stale).
//  2. Returns AlreadyPaid without mutating when the invoice is already paid.
//  3. Marks the invoice paid.
//  4. Activates the subscription, supersedes every other active or trial
//     subscription for the tenant, and cancels the superseded subscriptions'
//     open invoices and pending payments.
//  5. Settles the most recent pending payment row, or inserts a completed
//     one when none exists.
//  6. Mirrors the activated plan onto the tenant row.
func (l *Ledger) ApplyComplete(ctx context.Context, p gateway.ApplyCompleteParams) (*gateway.ApplyCompleteResult, error) {
	var result gateway.ApplyCompleteResult

	err := l.runner.WithTx(ctx, func(tx DBTX) error {
		invoices := NewInvoiceRepository(tx)
		subs := NewSubscriptionRepository(tx)
		payments := NewPaymentRepository(tx)
		tenants := NewTenantRepository(tx)

		invoice, err := invoices.GetForUpdate(ctx, p.InvoiceID)
		if err != nil {
			return err
		}

		switch invoice.Status {
		case types.InvoiceStatusPaid:
			// Replayed delivery; converge without mutating.
			result.AlreadyPaid = true
			return nil
		case types.InvoiceStatusCancelled:
			return types.NewAppError(types.ErrCodeConflictState,
				"COMPLETE notification for a cancelled invoice", nil)
		}

		if err := invoices.MarkPaid(ctx, invoice.ID); err != nil {
			return err
		}

		sub, err := subs.GetByID(ctx, invoice.SubscriptionID)
		if err != nil {
			return err
		}
		result.Activated = sub.Status != types.SubStatusActive

		sub, err = subs.Activate(ctx, sub.ID)
		if err != nil {
			return err
		}
		result.Subscription = sub

		superseded, err := subs.SupersedeOthers(ctx, invoice.TenantID, sub.ID)
		if err != nil {
			return err
		}
		if superseded > 0 {
			l.logger.InfoContext(ctx, "superseded prior subscriptions",
				"tenant_id", invoice.TenantID,
				"subscription_id", sub.ID,
				"count", superseded,
			)
			// Superseded plans must not keep billing; drop their open
			// invoices and pending payments in the same transaction.
			cancelledInvoices, err := invoices.CancelSupersededPending(ctx, invoice.TenantID, sub.ID)
			if err != nil {
				return err
			}
			cancelledPayments, err := payments.CancelForSupersededSubscriptions(ctx, invoice.TenantID, sub.ID)
			if err != nil {
				return err
			}
			if cancelledInvoices > 0 || cancelledPayments > 0 {
				l.logger.InfoContext(ctx, "cancelled open billing of superseded subscriptions",
					"tenant_id", invoice.TenantID,
					"invoices", cancelledInvoices,
					"payments", cancelledPayments,
				)
			}
		}

		pending, err := payments.FindPendingForInvoice(ctx, invoice.ID)
		switch {
		case err == nil:
			if err := payments.Settle(ctx, pending.ID, p.TransactionID, p.Gross, p.Raw); err != nil {
				return err
			}
		case errors.Is(err, pgx.ErrNoRows):
			l.logger.WarnContext(ctx, "no pending payment row for verified notification; inserting",
				"invoice_id", invoice.ID,
				"transaction_id", p.TransactionID,
			)
			if err := payments.CreateCompleted(ctx, invoice.ID, p.TransactionID, p.Method, p.Gross, p.Raw); err != nil {
				return err
			}
		default:
			return err
		}

		tenant, err := tenants.SyncBillingMirror(ctx, invoice.TenantID, sub.PlanName, sub.Cycle, sub.Status)
		if err != nil {
			return err
		}
		result.Tenant = tenant

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplyCancelled reacts to a verified CANCELLED notification: the invoice
// and its subscription are cancelled and any pending payments are cancelled
// with the raw fields attached. A non-pending invoice makes the whole call a
// no-op, so stale cancellations arriving after payment cannot claw anything
// back.
func (l *Ledger) ApplyCancelled(ctx context.Context, invoiceID int64, raw map[string]string) error {
	return l.runner.WithTx(ctx, func(tx DBTX) error {
		invoices := NewInvoiceRepository(tx)
		subs := NewSubscriptionRepository(tx)
		payments := NewPaymentRepository(tx)

		invoice, err := invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != types.InvoiceStatusPending {
			l.logger.InfoContext(ctx, "cancellation ignored for non-pending invoice",
				"invoice_id", invoiceID,
				"status", string(invoice.Status),
			)
			return nil
		}

		if err := invoices.MarkCancelled(ctx, invoice.ID); err != nil {
			return err
		}
		if err := subs.Cancel(ctx, invoice.SubscriptionID); err != nil {
			return err
		}
		if _, err := payments.CancelPending(ctx, invoice.ID, raw); err != nil {
			return err
		}
		return nil
	})
}

// ApplyUnresolved parks a notification with an unrecognized provider status:
// the invoice stays pending, and the most recent pending payment (if any) is
// failed with the provider status recorded in its metadata for manual
// follow-up.
func (l *Ledger) ApplyUnresolved(ctx context.Context, invoiceID int64, providerStatus string, raw map[string]string) error {
	return l.runner.WithTx(ctx, func(tx DBTX) error {
		invoices := NewInvoiceRepository(tx)
		payments := NewPaymentRepository(tx)

		// Lock the invoice so a concurrent COMPLETE cannot settle the same
		// payment row mid-flight.
		if _, err := invoices.GetForUpdate(ctx, invoiceID); err != nil {
			return err
		}

		annotated := make(map[string]string, len(raw)+1)
		for k, v := range raw {
			annotated[k] = v
		}
		annotated["unresolved_status"] = providerStatus

		pending, err := payments.FindPendingForInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				l.logger.WarnContext(ctx, "unresolved notification with no pending payment",
					"invoice_id", invoiceID,
					"provider_status", providerStatus,
				)
				return nil
			}
			return err
		}
		return payments.Fail(ctx, pending.ID, annotated)
	})
}
