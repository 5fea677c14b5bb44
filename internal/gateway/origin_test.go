package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResolver struct {
	hosts map[string][]string
	err   error
	calls []string
}

func (r *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	r.calls = append(r.calls, host)
	if r.err != nil {
		return nil, r.err
	}
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func TestOriginValidator_RequestIPMatch(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{
		"www.payfast.co.za":     {"197.97.145.144", "197.97.145.145"},
		"sandbox.payfast.co.za": {"197.97.145.160"},
	}}
	v := NewOriginValidator(resolver, []string{"www.payfast.co.za", "sandbox.payfast.co.za"}, nil)

	assert.True(t, v.IsTrusted(context.Background(), "197.97.145.160", ""))
	assert.False(t, v.IsTrusted(context.Background(), "203.0.113.9", ""))
}

func TestOriginValidator_RefererMatch(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{
		"www.payfast.co.za": {"197.97.145.144"},
		// Attacker-controlled host resolving elsewhere.
		"evil.example.com": {"203.0.113.50"},
		// Vanity CNAME that resolves to a trusted IP.
		"notify.payfast.co.za": {"197.97.145.144"},
	}}
	v := NewOriginValidator(resolver, []string{"www.payfast.co.za"}, nil)

	assert.True(t, v.IsTrusted(context.Background(), "203.0.113.9", "https://www.payfast.co.za/eng/process"))
	assert.True(t, v.IsTrusted(context.Background(), "203.0.113.9", "notify.payfast.co.za"))
	assert.False(t, v.IsTrusted(context.Background(), "203.0.113.9", "https://evil.example.com/"))
	assert.False(t, v.IsTrusted(context.Background(), "203.0.113.9", ""))
}

func TestOriginValidator_FailsClosed(t *testing.T) {
	t.Run("empty trusted set", func(t *testing.T) {
		resolver := &fakeResolver{hosts: map[string][]string{}}
		v := NewOriginValidator(resolver, nil, nil)
		assert.False(t, v.IsTrusted(context.Background(), "197.97.145.144", ""))
	})

	t.Run("all resolutions fail", func(t *testing.T) {
		resolver := &fakeResolver{err: errors.New("dns timeout")}
		v := NewOriginValidator(resolver, []string{"www.payfast.co.za"}, nil)
		assert.False(t, v.IsTrusted(context.Background(), "197.97.145.144", ""))
	})

	t.Run("referer resolution fails", func(t *testing.T) {
		resolver := &fakeResolver{hosts: map[string][]string{
			"www.payfast.co.za": {"197.97.145.144"},
		}}
		v := NewOriginValidator(resolver, []string{"www.payfast.co.za"}, nil)
		assert.False(t, v.IsTrusted(context.Background(), "203.0.113.9", "https://unresolvable.example/"))
	})
}

func TestOriginValidator_PartialResolutionStillTrusts(t *testing.T) {
	// One trusted host failing to resolve must not block addresses from the
	// hosts that did resolve.
	resolver := &fakeResolver{hosts: map[string][]string{
		"www.payfast.co.za": {"197.97.145.144"},
	}}
	v := NewOriginValidator(resolver, []string{"sandbox.payfast.co.za", "www.payfast.co.za"}, nil)

	assert.True(t, v.IsTrusted(context.Background(), "197.97.145.144", ""))
}

func TestHostFromReferer(t *testing.T) {
	tests := []struct {
		referer string
		want    string
	}{
		{"https://www.payfast.co.za/eng/process", "www.payfast.co.za"},
		{"https://www.payfast.co.za:443/", "www.payfast.co.za"},
		{"www.payfast.co.za", "www.payfast.co.za"},
		{"/relative/path", ""},
		{"https://[broken", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hostFromReferer(tt.referer), "referer %q", tt.referer)
	}
}
