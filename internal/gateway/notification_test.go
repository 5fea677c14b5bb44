package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billgate/internal/types"
)

func TestParseNotification_PreservesFieldOrder(t *testing.T) {
	body := []byte("m_payment_id=INV-42-8f1c&pf_payment_id=1290101&payment_status=COMPLETE&amount_gross=499.00&merchant_id=10000100&signature=abc123")

	n, err := ParseNotification(body)
	require.NoError(t, err)

	fields := n.Fields()
	require.Len(t, fields, 5)
	assert.Equal(t, "m_payment_id", fields[0].Key)
	assert.Equal(t, "pf_payment_id", fields[1].Key)
	assert.Equal(t, "payment_status", fields[2].Key)
	assert.Equal(t, "amount_gross", fields[3].Key)
	assert.Equal(t, "merchant_id", fields[4].Key)

	// The signature is detached, never part of the canonical field list.
	assert.Equal(t, "abc123", n.Signature)

	assert.Equal(t, "INV-42-8f1c", n.MerchantRef)
	assert.Equal(t, "1290101", n.ProviderTxnID)
	assert.Equal(t, "COMPLETE", n.PaymentStatus)
	assert.Equal(t, "499.00", n.AmountGross)
	assert.Equal(t, "10000100", n.MerchantID)
}

func TestParseNotification_DecodesFormEncoding(t *testing.T) {
	body := []byte("item_name=Pro+Plan+%28Monthly%29&email_address=billing%40acme.test")

	n, err := ParseNotification(body)
	require.NoError(t, err)
	assert.Equal(t, "Pro Plan (Monthly)", n.ItemName)
	assert.Equal(t, "billing@acme.test", n.BuyerEmail)
}

func TestParseNotification_RejectsBrokenEncoding(t *testing.T) {
	_, err := ParseNotification([]byte("amount_gross=%zz"))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidBody, appErr.Code)
}

func TestParamString_ReencodesInWireOrder(t *testing.T) {
	n, err := ParseNotification([]byte("item_name=Pro+Plan+%28Monthly%29&amount_gross=499.00&signature=ignored"))
	require.NoError(t, err)

	assert.Equal(t, "item_name=Pro+Plan+%28Monthly%29&amount_gross=499.00", n.ParamString())
}

func TestParamString_TrimsValues(t *testing.T) {
	n, err := ParseNotification([]byte("amount_gross=+499.00+"))
	require.NoError(t, err)

	assert.Equal(t, "amount_gross=499.00", n.ParamString())
}

func TestInvoiceID(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    int64
		wantErr bool
	}{
		{"well formed", "INV-42-8f1c", 42, false},
		{"no nonce suffix", "INV-7", 7, false},
		{"wrong prefix", "ORD-42-8f1c", 0, true},
		{"non numeric id", "INV-abc-8f1c", 0, true},
		{"zero id", "INV-0-8f1c", 0, true},
		{"negative id", "INV--3-8f1c", 0, true},
		{"empty reference", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Notification{MerchantRef: tt.ref}
			id, err := n.InvoiceID()
			if tt.wantErr {
				require.Error(t, err)
				var appErr *types.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, types.ErrCodeValidationMalformedReference, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestGrossAmount(t *testing.T) {
	n := &Notification{AmountGross: " 499.00 "}
	d, err := n.GrossAmount()
	require.NoError(t, err)
	assert.Equal(t, "499", d.String())

	n = &Notification{AmountGross: "not-a-number"}
	_, err = n.GrossAmount()
	require.Error(t, err)
}

func TestRawFields_IncludesSignature(t *testing.T) {
	n, err := ParseNotification([]byte("merchant_id=10000100&signature=deadbeef"))
	require.NoError(t, err)

	raw := n.RawFields()
	assert.Equal(t, "10000100", raw["merchant_id"])
	assert.Equal(t, "deadbeef", raw["signature"])
}
