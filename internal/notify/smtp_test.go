package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"billgate/internal/config"
	"billgate/internal/gateway"
)

// fakeDialer captures dialed messages instead of opening SMTP connections.
type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func newTestSMTPEmitter(dialer *fakeDialer) *SMTPEmitter {
	cfg := config.EmailConfig{
		FromAddress: "billing@billgate.io",
		FromName:    "BillGate Billing",
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return newSMTPEmitterWithDialer(dialer, cfg, logger)
}

func TestSMTPEmitter_SendActivation(t *testing.T) {
	dialer := &fakeDialer{}
	emitter := newTestSMTPEmitter(dialer)

	err := emitter.SendActivation(context.Background(), gateway.ActivationNotice{
		TenantID: 42,
		Email:    "owner@acme.test",
		PlanName: "Pro",
	})
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)

	msg := dialer.sent[0]
	assert.Equal(t, []string{"BillGate Billing <billing@billgate.io>"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"owner@acme.test"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Your subscription is active"}, msg.GetHeader("Subject"))
}

func TestSMTPEmitter_SendReceipt(t *testing.T) {
	dialer := &fakeDialer{}
	emitter := newTestSMTPEmitter(dialer)

	err := emitter.SendReceipt(context.Background(), gateway.ReceiptNotice{
		TenantID:      42,
		Email:         "owner@acme.test",
		InvoiceID:     7,
		TransactionID: "1089250",
		Amount:        decimal.RequireFromString("499.00"),
	})
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)

	assert.Equal(t, []string{"Payment received for invoice #7"}, dialer.sent[0].GetHeader("Subject"))
}

func TestSMTPEmitter_DialFailurePropagates(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	emitter := newTestSMTPEmitter(dialer)

	err := emitter.SendActivation(context.Background(), gateway.ActivationNotice{
		TenantID: 1,
		Email:    "a@b.test",
		PlanName: "Pro",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp delivery failed")
}
