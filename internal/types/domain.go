package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Billing ledger entities
//
// These records are created by upstream provisioning flows (checkout, plan
// selection). The notification dispatcher only transitions their status
// fields; it never creates invoices or subscriptions.
// ---------------------------------------------------------------------------

// InvoiceStatus enumerates the lifecycle states of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
)

// Invoice is the billable record a payment notification reconciles against.
// Status transitions driven by a notification are monotonic: pending may move
// to paid or cancelled, never backward.
type Invoice struct {
	ID             int64
	TenantID       int64
	SubscriptionID int64
	Amount         decimal.Decimal
	Status         InvoiceStatus
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscriptionStatus enumerates the lifecycle states of a subscription.
type SubscriptionStatus string

const (
	SubStatusTrial     SubscriptionStatus = "trial"
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusCancelled SubscriptionStatus = "cancelled"
)

// BillingCycle is the renewal interval of a subscription plan.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Subscription ties a tenant to a plan. At most one subscription per tenant
// may be active at a time; activating one forcibly cancels the rest
// (supersession).
type Subscription struct {
	ID          int64
	TenantID    int64
	PlanName    string
	Cycle       BillingCycle
	Status      SubscriptionStatus
	StartsAt    *time.Time
	EndsAt      *time.Time
	TrialEndsAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentStatus enumerates the lifecycle states of a payment row.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Payment records a single payment attempt against an invoice. Metadata holds
// the raw provider notification fields for audit; the notification itself is
// never persisted verbatim anywhere else.
type Payment struct {
	ID            int64
	InvoiceID     int64
	TransactionID string
	Amount        decimal.Decimal
	Method        string
	Status        PaymentStatus
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tenant carries the denormalized billing mirror of the active subscription.
// These fields are a read optimization; the subscriptions table remains the
// source of truth.
type Tenant struct {
	ID                 int64
	Name               string
	Email              string
	PlanName           string
	BillingCycle       BillingCycle
	SubscriptionStatus SubscriptionStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ---------------------------------------------------------------------------
// Gateway credentials
// ---------------------------------------------------------------------------

// MerchantCredentials holds the per-tenant payment gateway configuration.
// Key material is stored encrypted at rest and decrypted on read by the
// credential repository.
type MerchantCredentials struct {
	TenantID    int64
	MerchantID  string
	MerchantKey SecretString
	Passphrase  SecretString // optional; empty means no passphrase configured
	Sandbox     bool         // route confirmation calls to the sandbox host
}

// HasPassphrase reports whether a signature passphrase is configured.
func (c MerchantCredentials) HasPassphrase() bool {
	return c.Passphrase.Unmask() != ""
}
