// Package gateway implements the inbound payment-notification pipeline: the
// typed ITN payload, the four verification gates (signature, origin, amount,
// provider confirmation), and the dispatcher that applies the resulting
// billing-state transition exactly once.
//
// The provider delivers notifications as form-encoded POSTs and retries any
// response other than HTTP 200, so every failure in this package is swallowed
// by the handler after logging; nothing here maps to an HTTP error status.
package gateway

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"billgate/internal/types"
)

// signatureField is the detached digest field excluded from canonicalization.
const signatureField = "signature"

// Well-known notification field names, per the provider's ITN contract.
const (
	fieldMerchantID       = "merchant_id"
	fieldMerchantRef      = "m_payment_id"
	fieldProviderTxnID    = "pf_payment_id"
	fieldPaymentStatus    = "payment_status"
	fieldAmountGross      = "amount_gross"
	fieldItemName         = "item_name"
	fieldBuyerEmail       = "email_address"
)

// Provider payment status values interpreted by the dispatcher. Any other
// value is recorded as unresolved for manual follow-up.
const (
	StatusComplete  = "COMPLETE"
	StatusCancelled = "CANCELLED"
)

// Field is a single ordered key/value pair from the notification body.
// Order is part of the signature's canonical form, so fields are kept as a
// slice rather than a map.
type Field struct {
	Key   string
	Value string
}

// Notification is the typed, untrusted inbound ITN payload. It is constructed
// fresh per request and never persisted verbatim; only derived values reach
// the ledger (the raw map lands in the payment row's audit metadata).
type Notification struct {
	// fields holds every posted field except the signature, in wire order.
	fields []Field

	// Signature is the sender-declared digest, detached from the fields.
	Signature string

	// Extracted well-known values. Missing fields are the zero value; the
	// extraction happens in exactly one place (ParseNotification) so absent
	// fields are a single reviewed code path.
	MerchantID    string
	MerchantRef   string
	ProviderTxnID string
	PaymentStatus string
	AmountGross   string
	ItemName      string
	BuyerEmail    string
}

// ParseNotification decodes a form-encoded ITN body preserving field order.
// It never rejects unknown fields: the field set is provider-defined and must
// pass through opaquely for signature canonicalization.
//
// An error is returned only for bodies that are not parseable as
// form-encoding at all; missing well-known fields are left zero-valued and
// surface later as gate rejections.
func ParseNotification(body []byte) (*Notification, error) {
	n := &Notification{}

	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidBody,
				"notification body is not valid form encoding", err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidBody,
				"notification body is not valid form encoding", err)
		}

		if key == signatureField {
			n.Signature = value
			continue
		}
		n.fields = append(n.fields, Field{Key: key, Value: value})

		switch key {
		case fieldMerchantID:
			n.MerchantID = value
		case fieldMerchantRef:
			n.MerchantRef = value
		case fieldProviderTxnID:
			n.ProviderTxnID = value
		case fieldPaymentStatus:
			n.PaymentStatus = value
		case fieldAmountGross:
			n.AmountGross = value
		case fieldItemName:
			n.ItemName = value
		case fieldBuyerEmail:
			n.BuyerEmail = value
		}
	}

	return n, nil
}

// Fields returns the ordered notification fields, signature excluded.
func (n *Notification) Fields() []Field {
	return n.fields
}

// ParamString builds the canonical parameter string: every field except the
// signature, in the exact order received, encoded as key=urlencode(trim(value))
// joined by "&". This string is used both for signature computation (with the
// passphrase appended) and as the body of the server-side confirmation call
// (without it).
func (n *Notification) ParamString() string {
	var b strings.Builder
	for i, f := range n.fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.TrimSpace(f.Value)))
	}
	return b.String()
}

// GrossAmount parses the notified gross amount as a fixed-point decimal.
// Binary floats are never used for money; compounding rounding errors across
// the reconciliation comparison would defeat the tolerance check.
func (n *Notification) GrossAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(n.AmountGross))
	if err != nil {
		return decimal.Zero, types.NewAppError(types.ErrCodeValidationInvalidAmount,
			"notification gross amount is not a valid decimal", err)
	}
	return d, nil
}

// RawFields returns the notification as a flat map for audit metadata.
// The signature is included so the audit trail captures the payload exactly
// as received.
func (n *Notification) RawFields() map[string]string {
	raw := make(map[string]string, len(n.fields)+1)
	for _, f := range n.fields {
		raw[f.Key] = f.Value
	}
	if n.Signature != "" {
		raw[signatureField] = n.Signature
	}
	return raw
}

// referencePrefix is the structured prefix carried in the merchant reference.
// Checkout flows construct references as "INV-<invoiceID>-<nonce>".
const referencePrefix = "INV"

// InvoiceID parses the numeric invoice identifier out of the merchant
// reference. Malformed or absent references are a lookup failure, not a
// panic: the dispatcher logs and rejects, and the handler still responds 200.
func (n *Notification) InvoiceID() (int64, error) {
	parts := strings.Split(n.MerchantRef, "-")
	if len(parts) < 2 || parts[0] != referencePrefix {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationMalformedReference,
			"merchant reference does not match INV-<id>-... format", nil,
			map[string]any{"m_payment_id": n.MerchantRef})
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationMalformedReference,
			"merchant reference carries a non-numeric invoice id", err,
			map[string]any{"m_payment_id": n.MerchantRef})
	}
	return id, nil
}
