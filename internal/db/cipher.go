package db

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"billgate/internal/types"
)

// nonceSize is the secretbox nonce length, prepended to every ciphertext.
const nonceSize = 24

// Cipher encrypts and decrypts merchant credential material at rest using
// NaCl secretbox (XSalsa20-Poly1305). Ciphertexts are base64-encoded with
// the random nonce prepended, so each encryption of the same plaintext
// yields a distinct stored value.
type Cipher struct {
	key [32]byte
}

// NewCipher creates a Cipher from a 32-byte hex-encoded key (64 hex chars),
// as carried in GATEWAY_CREDENTIAL_KEY.
func NewCipher(hexKey string) (*Cipher, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalCrypto, "credential key is not valid hex", err)
	}
	if len(raw) != 32 {
		return nil, types.NewAppError(types.ErrCodeInternalCrypto, "credential key must be 32 bytes", nil)
	}

	c := &Cipher{}
	copy(c.key[:], raw)
	return c, nil
}

// Encrypt seals the plaintext and returns the base64 ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "failed to generate nonce", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 ciphertext produced by Encrypt. Tampered or
// wrongly-keyed ciphertexts fail authentication and return an error.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "ciphertext is not valid base64", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "ciphertext too short", nil)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "failed to authenticate ciphertext", nil)
	}
	return string(plaintext), nil
}
