package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfirmServer(t *testing.T, status int, body string, gotBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if gotBody != nil {
			*gotBody = string(raw)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConfirmationClient_Valid(t *testing.T) {
	var gotBody string
	srv := newConfirmServer(t, http.StatusOK, "VALID", &gotBody)
	client := NewConfirmationClient(5*time.Second, nil, WithValidateEndpoints(srv.URL, srv.URL))

	ok, err := client.Confirm(context.Background(), "m_payment_id=INV-42-8f1c&amount_gross=499.00", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "m_payment_id=INV-42-8f1c&amount_gross=499.00", gotBody)
}

func TestConfirmationClient_VerdictNormalization(t *testing.T) {
	srv := newConfirmServer(t, http.StatusOK, "\n  valid \n", nil)
	client := NewConfirmationClient(5*time.Second, nil, WithValidateEndpoints(srv.URL, srv.URL))

	ok, err := client.Confirm(context.Background(), "a=b", false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfirmationClient_Invalid(t *testing.T) {
	srv := newConfirmServer(t, http.StatusOK, "INVALID", nil)
	client := NewConfirmationClient(5*time.Second, nil, WithValidateEndpoints(srv.URL, srv.URL))

	ok, err := client.Confirm(context.Background(), "a=b", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirmationClient_Non200FailsClosed(t *testing.T) {
	srv := newConfirmServer(t, http.StatusServiceUnavailable, "", nil)
	client := NewConfirmationClient(5*time.Second, nil, WithValidateEndpoints(srv.URL, srv.URL))

	ok, err := client.Confirm(context.Background(), "a=b", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirmationClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	client := NewConfirmationClient(time.Second, nil, WithValidateEndpoints(srv.URL, srv.URL))

	ok, err := client.Confirm(context.Background(), "a=b", false)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestConfirmationClient_SandboxSelection(t *testing.T) {
	live := newConfirmServer(t, http.StatusOK, "INVALID", nil)
	sandbox := newConfirmServer(t, http.StatusOK, "VALID", nil)
	client := NewConfirmationClient(5*time.Second, nil, WithValidateEndpoints(live.URL, sandbox.URL))

	ok, err := client.Confirm(context.Background(), "a=b", true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Confirm(context.Background(), "a=b", false)
	require.NoError(t, err)
	assert.False(t, ok)
}
