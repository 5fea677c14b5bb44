package gateway

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"

	"billgate/internal/types"
)

// SignatureVerifier recomputes the provider's keyed digest over the
// notification payload and compares it to the sender-declared signature.
//
// The digest algorithm is MD5 over the canonical parameter string. This is
// the provider's fixed wire contract, not a design choice; the service has no
// latitude to substitute a stronger hash. The string comparison is plain
// equality: the check is security-relevant but not side-channel-critical,
// since an attacker cannot observe response timing through the provider's
// webhook retry loop.
type SignatureVerifier struct{}

// NewSignatureVerifier creates a SignatureVerifier.
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

// Verify reports whether the declared signature matches the digest computed
// over the notification's fields in wire order, with the passphrase appended
// when one is configured. It returns false on any mismatch and never errors;
// the caller logs and aborts the pipeline.
func (v *SignatureVerifier) Verify(n *Notification, passphrase types.SecretString) bool {
	if n.Signature == "" {
		return false
	}
	return computeSignature(n, passphrase) == strings.ToLower(n.Signature)
}

// computeSignature builds the canonical string and returns its lowercase hex
// MD5 digest. The passphrase, when present, is appended as a final
// "&passphrase=" component exactly as the provider does on its side.
func computeSignature(n *Notification, passphrase types.SecretString) string {
	base := n.ParamString()
	if pass := passphrase.Unmask(); pass != "" {
		base += "&passphrase=" + url.QueryEscape(strings.TrimSpace(pass))
	}

	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}
