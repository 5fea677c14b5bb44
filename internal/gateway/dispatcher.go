package gateway

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"billgate/internal/types"
)

// ---------------------------------------------------------------------------
// Pipeline states and outcomes
// ---------------------------------------------------------------------------

// State is a notification's position in the verification pipeline.
type State string

const (
	StateReceived          State = "received"
	StateSignatureChecked  State = "signature_checked"
	StateOriginChecked     State = "origin_checked"
	StateAmountChecked     State = "amount_checked"
	StateProviderConfirmed State = "provider_confirmed"

	// Terminal states.
	StateApplied  State = "applied"
	StateRejected State = "rejected"
	StateErrored  State = "errored"
)

// Gate identifies the verification check a notification was rejected at.
type Gate string

const (
	GateSignature    Gate = "signature"
	GateOrigin       Gate = "origin"
	GateReference    Gate = "reference"
	GateAmount       Gate = "amount"
	GateConfirmation Gate = "confirmation"
)

// Outcome is the explicit result of dispatching one notification. The
// webhook handler responds 200 for every variant; the type exists so that
// contract is enforced structurally rather than by a blanket recover.
type Outcome struct {
	// State is terminal: StateApplied, StateRejected, or StateErrored.
	State State

	// Gate is set when State is StateRejected.
	Gate Gate

	// Err carries the cause for StateErrored outcomes and for rejections
	// with an underlying infrastructure failure (e.g. provider unreachable).
	Err error
}

// Applied reports whether the notification resulted in (or converged with) a
// ledger transition.
func (o Outcome) Applied() bool { return o.State == StateApplied }

func rejectedAt(gate Gate, err error) Outcome {
	return Outcome{State: StateRejected, Gate: gate, Err: err}
}

func errored(err error) Outcome {
	return Outcome{State: StateErrored, Err: err}
}

// ---------------------------------------------------------------------------
// Dispatcher ports
// ---------------------------------------------------------------------------

// ApplyCompleteParams carries everything the ledger needs to settle an
// invoice after a verified COMPLETE notification.
type ApplyCompleteParams struct {
	InvoiceID     int64
	TransactionID string
	Gross         decimal.Decimal
	Method        string
	Raw           map[string]string
}

// ApplyCompleteResult reports what the ledger transition actually did, so the
// dispatcher can decide which notifications to emit.
type ApplyCompleteResult struct {
	// AlreadyPaid is true when the invoice was paid before this call: the
	// delivery is a replay, nothing was mutated, and no emails are sent.
	AlreadyPaid bool

	// Activated is true when the owning subscription transitioned to active
	// as part of this call (as opposed to already being active).
	Activated bool

	Subscription *types.Subscription
	Tenant       *types.Tenant
}

// BillingLedger is the dispatcher's port onto the billing records it mutates.
// Implementations must run each Apply call in a single transaction with a
// row-level lock on the invoice, so concurrent deliveries of the same
// notification cannot both transition it.
type BillingLedger interface {
	// FindInvoice loads the invoice a notification claims to settle.
	FindInvoice(ctx context.Context, invoiceID int64) (*types.Invoice, error)

	// ApplyComplete marks the invoice paid, activates the subscription if
	// needed (superseding all other active/trial subscriptions for the
	// tenant), settles the pending payment row, and mirrors the plan onto
	// the tenant. Re-applying to a paid invoice is a no-op.
	ApplyComplete(ctx context.Context, p ApplyCompleteParams) (*ApplyCompleteResult, error)

	// ApplyCancelled cancels the invoice, its subscription, and any pending
	// payment.
	ApplyCancelled(ctx context.Context, invoiceID int64, raw map[string]string) error

	// ApplyUnresolved flags an unrecognized provider status for manual
	// follow-up: the invoice stays pending and any pending payment is
	// failed, annotated with the raw status string.
	ApplyUnresolved(ctx context.Context, invoiceID int64, providerStatus string, raw map[string]string) error
}

// ActivationNotice describes a subscription-activation email.
type ActivationNotice struct {
	TenantID int64
	Email    string
	PlanName string
}

// ReceiptNotice describes a payment-receipt email.
type ReceiptNotice struct {
	TenantID      int64
	Email         string
	InvoiceID     int64
	TransactionID string
	Amount        decimal.Decimal
}

// Emitter is the dispatcher's port onto the notification system. Emission
// failures are logged and never fail the webhook: the ledger transition has
// already committed by the time emails are queued.
type Emitter interface {
	SendActivation(ctx context.Context, n ActivationNotice) error
	SendReceipt(ctx context.Context, n ReceiptNotice) error
}

// CredentialSource resolves gateway credentials for the merchant id a
// notification claims to be for.
type CredentialSource interface {
	ByMerchantID(ctx context.Context, merchantID string) (types.MerchantCredentials, error)
}

// OriginChecker is the subset of OriginValidator the dispatcher needs.
type OriginChecker interface {
	IsTrusted(ctx context.Context, requestIP string, refererHeader string) bool
}

// Confirmer is the subset of ConfirmationClient the dispatcher needs.
type Confirmer interface {
	Confirm(ctx context.Context, paramString string, sandbox bool) (bool, error)
}

// OutcomeRecorder records terminal pipeline states for observability.
type OutcomeRecorder interface {
	RecordOutcome(state State, gate Gate)
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher orchestrates the four verification gates in strict order and
// applies the resulting billing-state transition exactly once.
//
// Gate order is fixed: signature, origin, reference lookup, amount,
// provider confirmation. The first failing gate short-circuits to a rejected
// outcome; no later gate runs and no billing mutation occurs. Only after the
// provider itself confirms the notification does the dispatcher interpret
// the payment status and touch the ledger.
type Dispatcher struct {
	signatures *SignatureVerifier
	origin     OriginChecker
	confirmer  Confirmer
	creds      CredentialSource
	ledger     BillingLedger
	emitter    Emitter
	metrics    OutcomeRecorder
	tolerance  decimal.Decimal
	logger     *slog.Logger
}

// NewDispatcher wires a Dispatcher from its ports. A zero tolerance falls
// back to DefaultAmountTolerance; a nil metrics recorder disables telemetry.
func NewDispatcher(
	origin OriginChecker,
	confirmer Confirmer,
	creds CredentialSource,
	ledger BillingLedger,
	emitter Emitter,
	metrics OutcomeRecorder,
	tolerance decimal.Decimal,
	logger *slog.Logger,
) *Dispatcher {
	if tolerance.IsZero() {
		tolerance = DefaultAmountTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		signatures: NewSignatureVerifier(),
		origin:     origin,
		confirmer:  confirmer,
		creds:      creds,
		ledger:     ledger,
		emitter:    emitter,
		metrics:    metrics,
		tolerance:  tolerance,
		logger:     logger,
	}
}

// Request bundles a parsed notification with the transport facts the origin
// gate needs.
type Request struct {
	Notification *Notification
	RemoteIP     string
	Referer      string
}

// Dispatch runs one notification through the pipeline and returns its
// terminal outcome. It never panics outward and never returns an error: every
// failure mode is folded into the Outcome so the handler can uphold the
// always-200 response contract.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	outcome := d.dispatch(ctx, req)
	if d.metrics != nil {
		d.metrics.RecordOutcome(outcome.State, outcome.Gate)
	}
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Outcome {
	n := req.Notification

	// Resolve credentials for the claimed merchant. A notification for an
	// unknown merchant can never verify; treat it as a signature rejection.
	creds, err := d.creds.ByMerchantID(ctx, n.MerchantID)
	if err != nil {
		d.logger.WarnContext(ctx, "notification rejected: unknown merchant",
			"merchant_id", n.MerchantID,
			"error", err,
		)
		return rejectedAt(GateSignature, err)
	}

	// Gate 1: signature.
	if !d.signatures.Verify(n, creds.Passphrase) {
		d.logger.WarnContext(ctx, "notification rejected: signature mismatch",
			"merchant_id", n.MerchantID,
			"m_payment_id", n.MerchantRef,
		)
		return rejectedAt(GateSignature, nil)
	}

	// Gate 2: origin.
	if !d.origin.IsTrusted(ctx, req.RemoteIP, req.Referer) {
		d.logger.WarnContext(ctx, "notification rejected: untrusted origin",
			"remote_ip", req.RemoteIP,
			"referer", req.Referer,
		)
		return rejectedAt(GateOrigin, nil)
	}

	// Reference lookup. The amount gate needs the stored invoice amount, so
	// the lookup sits between origin and amount.
	invoiceID, err := n.InvoiceID()
	if err != nil {
		d.logger.WarnContext(ctx, "notification rejected: malformed merchant reference",
			"m_payment_id", n.MerchantRef,
			"error", err,
		)
		return rejectedAt(GateReference, err)
	}

	invoice, err := d.ledger.FindInvoice(ctx, invoiceID)
	if err != nil {
		d.logger.WarnContext(ctx, "notification rejected: invoice lookup failed",
			"invoice_id", invoiceID,
			"error", err,
		)
		return rejectedAt(GateReference, err)
	}
	ctx = types.WithTenantID(ctx, invoice.TenantID)

	// Gate 3: amount reconciliation.
	gross, err := n.GrossAmount()
	if err != nil {
		d.logger.WarnContext(ctx, "notification rejected: unparseable gross amount",
			"invoice_id", invoice.ID,
			"amount_gross", n.AmountGross,
		)
		return rejectedAt(GateAmount, err)
	}
	if !AmountsMatch(invoice.Amount, gross, d.tolerance) {
		d.logger.WarnContext(ctx, "notification rejected: amount mismatch",
			"invoice_id", invoice.ID,
			"expected", invoice.Amount.String(),
			"gross", gross.String(),
		)
		return rejectedAt(GateAmount, nil)
	}

	// Gate 4: server-side confirmation. Infrastructure failures fail closed;
	// an unreachable provider does not get the benefit of the doubt.
	confirmed, err := d.confirmer.Confirm(ctx, n.ParamString(), creds.Sandbox)
	if err != nil {
		d.logger.ErrorContext(ctx, "notification rejected: provider confirmation unreachable",
			"invoice_id", invoice.ID,
			"error", err,
		)
		return rejectedAt(GateConfirmation, err)
	}
	if !confirmed {
		d.logger.WarnContext(ctx, "notification rejected: provider denied authenticity",
			"invoice_id", invoice.ID,
		)
		return rejectedAt(GateConfirmation, nil)
	}

	// All gates passed: interpret the payment status and transition the
	// ledger. Ledger failures are logged with full context and surfaced as
	// errored outcomes; the handler still responds 200 so the provider does
	// not hot-loop retries against a guaranteed-failing mutation.
	return d.apply(ctx, n, invoice, gross)
}

// apply performs the ledger transition for a fully verified notification.
// gross is the provider's notified amount; the payment row records what was
// actually paid, not what was billed.
func (d *Dispatcher) apply(ctx context.Context, n *Notification, invoice *types.Invoice, gross decimal.Decimal) Outcome {
	switch n.PaymentStatus {
	case StatusComplete:
		result, err := d.ledger.ApplyComplete(ctx, ApplyCompleteParams{
			InvoiceID:     invoice.ID,
			TransactionID: n.ProviderTxnID,
			Gross:         gross,
			Method:        "payfast",
			Raw:           n.RawFields(),
		})
		if err != nil {
			d.logger.ErrorContext(ctx, "ledger mutation failed for COMPLETE notification",
				"invoice_id", invoice.ID,
				"pf_payment_id", n.ProviderTxnID,
				"raw", n.RawFields(),
				"error", err,
			)
			return errored(err)
		}

		if result.AlreadyPaid {
			// Replayed delivery: the ledger converged without mutating and
			// no further emails are sent.
			d.logger.InfoContext(ctx, "duplicate COMPLETE notification ignored",
				"invoice_id", invoice.ID,
				"pf_payment_id", n.ProviderTxnID,
			)
			return Outcome{State: StateApplied}
		}

		d.emitCompleteNotices(ctx, n, invoice, result)
		return Outcome{State: StateApplied}

	case StatusCancelled:
		if err := d.ledger.ApplyCancelled(ctx, invoice.ID, n.RawFields()); err != nil {
			d.logger.ErrorContext(ctx, "ledger mutation failed for CANCELLED notification",
				"invoice_id", invoice.ID,
				"raw", n.RawFields(),
				"error", err,
			)
			return errored(err)
		}
		return Outcome{State: StateApplied}

	default:
		// Unrecognized status: park the invoice for manual follow-up.
		if err := d.ledger.ApplyUnresolved(ctx, invoice.ID, n.PaymentStatus, n.RawFields()); err != nil {
			d.logger.ErrorContext(ctx, "ledger mutation failed for unresolved notification",
				"invoice_id", invoice.ID,
				"payment_status", n.PaymentStatus,
				"raw", n.RawFields(),
				"error", err,
			)
			return errored(err)
		}
		d.logger.WarnContext(ctx, "notification carried unrecognized payment status",
			"invoice_id", invoice.ID,
			"payment_status", n.PaymentStatus,
		)
		return Outcome{State: StateApplied}
	}
}

// emitCompleteNotices queues the activation and receipt emails after a
// first-time COMPLETE transition. Emission failures do not affect the
// outcome; the ledger has already committed.
func (d *Dispatcher) emitCompleteNotices(ctx context.Context, n *Notification, invoice *types.Invoice, result *ApplyCompleteResult) {
	if d.emitter == nil || result.Tenant == nil {
		return
	}

	email := result.Tenant.Email
	if n.BuyerEmail != "" {
		email = n.BuyerEmail
	}

	if result.Activated && result.Subscription != nil {
		if err := d.emitter.SendActivation(ctx, ActivationNotice{
			TenantID: result.Tenant.ID,
			Email:    email,
			PlanName: result.Subscription.PlanName,
		}); err != nil {
			d.logger.ErrorContext(ctx, "failed to queue activation email",
				"tenant_id", result.Tenant.ID,
				"error", err,
			)
		}
	}

	if err := d.emitter.SendReceipt(ctx, ReceiptNotice{
		TenantID:      result.Tenant.ID,
		Email:         email,
		InvoiceID:     invoice.ID,
		TransactionID: n.ProviderTxnID,
		Amount:        invoice.Amount,
	}); err != nil {
		d.logger.ErrorContext(ctx, "failed to queue receipt email",
			"tenant_id", result.Tenant.ID,
			"invoice_id", invoice.ID,
			"error", err,
		)
	}
}
