package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"billgate/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Fake TxRunner ---

// fakeRunner executes the transaction function directly against the supplied
// DBTX, recording whether a transaction was attempted.
type fakeRunner struct {
	tx     DBTX
	began  bool
	beginE error
}

func (r *fakeRunner) WithTx(_ context.Context, fn func(tx DBTX) error) error {
	r.began = true
	if r.beginE != nil {
		return r.beginE
	}
	return fn(r.tx)
}

func decimalFrom(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- Row helpers ---

func invoiceRow(inv types.Invoice) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = inv.ID
		*dest[1].(*int64) = inv.TenantID
		*dest[2].(*int64) = inv.SubscriptionID
		*dest[3].(*decimal.Decimal) = inv.Amount
		*dest[4].(*types.InvoiceStatus) = inv.Status
		*dest[5].(**time.Time) = inv.PaidAt
		*dest[6].(*time.Time) = inv.CreatedAt
		*dest[7].(*time.Time) = inv.UpdatedAt
		return nil
	}}
}

func subscriptionRow(sub types.Subscription) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = sub.ID
		*dest[1].(*int64) = sub.TenantID
		*dest[2].(*string) = sub.PlanName
		*dest[3].(*types.BillingCycle) = sub.Cycle
		*dest[4].(*types.SubscriptionStatus) = sub.Status
		*dest[5].(**time.Time) = sub.StartsAt
		*dest[6].(**time.Time) = sub.EndsAt
		*dest[7].(**time.Time) = sub.TrialEndsAt
		*dest[8].(*time.Time) = sub.CreatedAt
		*dest[9].(*time.Time) = sub.UpdatedAt
		return nil
	}}
}

func paymentRow(p types.Payment) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = p.ID
		*dest[1].(*int64) = p.InvoiceID
		*dest[2].(*string) = p.TransactionID
		*dest[3].(*decimal.Decimal) = p.Amount
		*dest[4].(*string) = p.Method
		*dest[5].(*types.PaymentStatus) = p.Status
		*dest[6].(*[]byte) = nil
		*dest[7].(*time.Time) = p.CreatedAt
		*dest[8].(*time.Time) = p.UpdatedAt
		return nil
	}}
}

func tenantRow(t types.Tenant) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = t.ID
		*dest[1].(*string) = t.Name
		*dest[2].(*string) = t.Email
		*dest[3].(*string) = t.PlanName
		*dest[4].(*types.BillingCycle) = t.BillingCycle
		*dest[5].(*types.SubscriptionStatus) = t.SubscriptionStatus
		*dest[6].(*time.Time) = t.CreatedAt
		*dest[7].(*time.Time) = t.UpdatedAt
		return nil
	}}
}
