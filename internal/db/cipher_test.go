package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billgate/internal/types"
)

const testCipherKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestCipher_RoundTrip(t *testing.T) {
	cipher, err := NewCipher(testCipherKey)
	require.NoError(t, err)

	ciphertext, err := cipher.Encrypt("46f0cd694581a")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "46f0cd694581a")

	plaintext, err := cipher.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "46f0cd694581a", plaintext)
}

func TestCipher_NonceRandomization(t *testing.T) {
	cipher, err := NewCipher(testCipherKey)
	require.NoError(t, err)

	a, err := cipher.Encrypt("same-secret")
	require.NoError(t, err)
	b, err := cipher.Encrypt("same-secret")
	require.NoError(t, err)

	// Same plaintext, distinct stored values.
	assert.NotEqual(t, a, b)
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	cipher, err := NewCipher(testCipherKey)
	require.NoError(t, err)

	ciphertext, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	tampered := []byte(ciphertext)
	tampered[len(tampered)-5] ^= 'x'

	_, err = cipher.Decrypt(string(tampered))
	require.Error(t, err)
}

func TestCipher_WrongKeyFailsAuthentication(t *testing.T) {
	cipherA, err := NewCipher(testCipherKey)
	require.NoError(t, err)
	cipherB, err := NewCipher("ff0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1eff")
	require.NoError(t, err)

	ciphertext, err := cipherA.Encrypt("secret")
	require.NoError(t, err)

	_, err = cipherB.Decrypt(ciphertext)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalCrypto, appErr.Code)
}

func TestNewCipher_InvalidKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"not hex", "zz0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"},
		{"too short", "0001020304"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(tt.key)
			require.Error(t, err)
		})
	}
}

func TestCipher_DecryptGarbage(t *testing.T) {
	cipher, err := NewCipher(testCipherKey)
	require.NoError(t, err)

	_, err = cipher.Decrypt("not-base64!!!")
	require.Error(t, err)

	_, err = cipher.Decrypt("c2hvcnQ=") // valid base64, shorter than a nonce
	require.Error(t, err)
}
