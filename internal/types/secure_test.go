package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretString_RedactsInFormatting(t *testing.T) {
	secret := SecretString("jt7NOE43FZPn")

	assert.Equal(t, "***REDACTED***", secret.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", secret))
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%s", secret))
}

func TestSecretString_RedactsInJSON(t *testing.T) {
	payload := struct {
		Passphrase SecretString `json:"passphrase"`
	}{Passphrase: "jt7NOE43FZPn"}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"passphrase":"***REDACTED***"}`, string(b))
}

func TestSecretString_Unmask(t *testing.T) {
	secret := SecretString("jt7NOE43FZPn")
	assert.Equal(t, "jt7NOE43FZPn", secret.Unmask())
}
