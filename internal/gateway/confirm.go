package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"billgate/internal/external"
	"billgate/internal/types"
)

// Confirmation endpoint hosts. The sandbox host is selected per tenant via
// the credential record's test-mode flag.
const (
	liveHost    = "www.payfast.co.za"
	sandboxHost = "sandbox.payfast.co.za"

	// validatePath is the provider's server-to-server validation endpoint.
	validatePath = "/eng/query/validate"

	// confirmBodyLimit caps the validation response read. The expected body
	// is a single word.
	confirmBodyLimit = 1024
)

// DefaultConfirmTimeout bounds the confirmation call so a slow or
// unreachable provider cannot exhaust request-handling capacity.
const DefaultConfirmTimeout = 30 * time.Second

// ConfirmationClient performs the out-of-band callback to the provider's own
// validation endpoint, corroborating that the provider actually issued the
// notification. This is the authoritative gate: a provider-side "INVALID"
// vetoes the transition even when every local check passed.
//
// The call goes over TLS with full certificate verification (peer and host);
// the transport is never configured with InsecureSkipVerify, which would
// defeat the purpose of this check entirely.
type ConfirmationClient struct {
	base       *external.BaseClient
	liveURL    string
	sandboxURL string
	logger     *slog.Logger
}

// ConfirmationOption is a functional option for configuring a ConfirmationClient.
type ConfirmationOption func(*ConfirmationClient)

// WithValidateEndpoints overrides the provider validation URLs. Intended for
// tests pointing at an httptest server.
func WithValidateEndpoints(live, sandbox string) ConfirmationOption {
	return func(c *ConfirmationClient) {
		c.liveURL = live
		c.sandboxURL = sandbox
	}
}

// withBaseClient injects a prebuilt BaseClient. Used by tests to control
// sleeping and transport behavior.
func withBaseClient(base *external.BaseClient) ConfirmationOption {
	return func(c *ConfirmationClient) {
		c.base = base
	}
}

// NewConfirmationClient creates a ConfirmationClient with a bounded-timeout
// HTTP client and a circuit breaker. The timeout covers the full round trip
// including connection establishment and body read.
func NewConfirmationClient(timeout time.Duration, logger *slog.Logger, opts ...ConfirmationOption) *ConfirmationClient {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: timeout}
	c := &ConfirmationClient{
		base:       external.NewBaseClient(httpClient, "gateway-confirm", external.NoRetryPolicy(), "billgate/1.0"),
		liveURL:    "https://" + liveHost + validatePath,
		sandboxURL: "https://" + sandboxHost + validatePath,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Confirm POSTs the canonical (unsigned) parameter string to the provider's
// validation endpoint and reports whether the provider acknowledged the
// notification as its own.
//
// Success requires HTTP 200 and a body that, trimmed and uppercased, equals
// "VALID". Any network error, timeout, non-200 status, or other body fails
// closed: a provider that cannot be reached does not get the benefit of the
// doubt.
func (c *ConfirmationClient) Confirm(ctx context.Context, paramString string, sandbox bool) (bool, error) {
	endpoint := c.liveURL
	if sandbox {
		endpoint = c.sandboxURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(paramString))
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build confirmation request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "provider confirmation returned non-200",
			"status", resp.StatusCode,
			"endpoint", endpoint,
		)
		return false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, confirmBodyLimit))
	if err != nil {
		return false, types.NewAppError(types.ErrCodeUpstreamGateway,
			"failed to read confirmation response body", err)
	}

	verdict := strings.ToUpper(strings.TrimSpace(string(body)))
	if verdict != "VALID" {
		c.logger.WarnContext(ctx, "provider rejected notification",
			"verdict", verdict,
			"endpoint", endpoint,
		)
		return false, nil
	}

	return true, nil
}
