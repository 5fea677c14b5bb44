package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billgate/internal/types"
)

// Reference vectors computed over the canonical form of this payload:
//
//	m_payment_id=INV-42-8f1c&pf_payment_id=1290101&payment_status=COMPLETE&amount_gross=499.00&merchant_id=10000100
const (
	testBody           = "m_payment_id=INV-42-8f1c&pf_payment_id=1290101&payment_status=COMPLETE&amount_gross=499.00&merchant_id=10000100"
	testDigest         = "9cae5f7181295b4eab24b1dce7285219"
	testDigestWithPass = "533f6a168713346ef01b2cc1e000706f"
	testPassphrase     = types.SecretString("jt7NOE43FZPn")
)

func mustParse(t *testing.T, body string) *Notification {
	t.Helper()
	n, err := ParseNotification([]byte(body))
	require.NoError(t, err)
	return n
}

func TestSignatureVerifier_MatchesKnownDigest(t *testing.T) {
	v := NewSignatureVerifier()

	n := mustParse(t, testBody+"&signature="+testDigest)
	assert.True(t, v.Verify(n, ""))

	n = mustParse(t, testBody+"&signature="+testDigestWithPass)
	assert.True(t, v.Verify(n, testPassphrase))
}

func TestSignatureVerifier_UppercaseDeclaredSignatureAccepted(t *testing.T) {
	v := NewSignatureVerifier()
	n := mustParse(t, testBody+"&signature=9CAE5F7181295B4EAB24B1DCE7285219")
	assert.True(t, v.Verify(n, ""))
}

func TestSignatureVerifier_RejectsMismatch(t *testing.T) {
	v := NewSignatureVerifier()

	n := mustParse(t, testBody+"&signature=00000000000000000000000000000000")
	assert.False(t, v.Verify(n, ""))

	// Right digest, wrong passphrase configuration on our side.
	n = mustParse(t, testBody+"&signature="+testDigest)
	assert.False(t, v.Verify(n, testPassphrase))
}

func TestSignatureVerifier_RejectsMissingSignature(t *testing.T) {
	v := NewSignatureVerifier()
	n := mustParse(t, testBody)
	assert.False(t, v.Verify(n, ""))
}

func TestSignatureVerifier_OrderSensitive(t *testing.T) {
	v := NewSignatureVerifier()

	// Same fields, first two swapped: the canonical string changes, so the
	// digest computed over the original order must no longer verify.
	reordered := "pf_payment_id=1290101&m_payment_id=INV-42-8f1c&payment_status=COMPLETE&amount_gross=499.00&merchant_id=10000100"
	n := mustParse(t, reordered+"&signature="+testDigest)
	assert.False(t, v.Verify(n, ""))

	// And the reordered payload has its own distinct digest.
	n2 := mustParse(t, reordered)
	assert.Equal(t, "01050f1650b0cb71115d68f2ea67de4e", computeSignature(n2, ""))
}

func TestComputeSignature_Deterministic(t *testing.T) {
	n := mustParse(t, testBody)
	first := computeSignature(n, testPassphrase)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, computeSignature(n, testPassphrase))
	}
}

func TestComputeSignature_EncodesSpecialCharacters(t *testing.T) {
	n := mustParse(t, "item_name=Pro+Plan+%28Monthly%29&amount_gross=499.00")
	assert.Equal(t, "ed76e3b5fc77d557717a5f636b99a982", computeSignature(n, ""))
}
