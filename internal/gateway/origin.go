package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"
)

// HostResolver resolves a hostname to its current set of IP addresses.
// Production code uses *net.Resolver; tests inject a fake.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// OriginValidator checks that an inbound notification originates from one of
// the provider's published hostnames.
//
// DNS-based origin checks are spoofable (the resolver answer is not
// authenticated, and source IPs can be proxied), so this gate is
// defense-in-depth alongside the signature and server-side confirmation
// checks, never a substitute for them.
//
// Resolution happens per request because the provider rotates IPs; results
// are deliberately not cached here. Concurrent deliveries racing on the same
// hostname are collapsed into a single in-flight lookup via singleflight.
type OriginValidator struct {
	resolver     HostResolver
	trustedHosts []string
	group        singleflight.Group
	logger       *slog.Logger
}

// NewOriginValidator creates an OriginValidator over the given trusted
// hostnames. A nil resolver falls back to the system resolver.
func NewOriginValidator(resolver HostResolver, trustedHosts []string, logger *slog.Logger) *OriginValidator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OriginValidator{
		resolver:     resolver,
		trustedHosts: trustedHosts,
		logger:       logger,
	}
}

// IsTrusted reports whether the request plausibly originates from the
// provider: either the direct request IP or the resolved IP of the referer
// header's host must be in the union of the trusted hostnames' address sets.
//
// Fails closed: an empty trusted set, any resolution error leaving the union
// empty, or no match all yield false.
func (v *OriginValidator) IsTrusted(ctx context.Context, requestIP string, refererHeader string) bool {
	trusted := v.resolveUnion(ctx)
	if len(trusted) == 0 {
		v.logger.WarnContext(ctx, "origin check failed closed: no trusted IPs resolved")
		return false
	}

	if requestIP != "" {
		if _, ok := trusted[requestIP]; ok {
			return true
		}
	}

	refererHost := hostFromReferer(refererHeader)
	if refererHost == "" {
		return false
	}
	addrs, err := v.lookup(ctx, refererHost)
	if err != nil {
		v.logger.WarnContext(ctx, "origin check: referer host resolution failed",
			"referer_host", refererHost,
			"error", err,
		)
		return false
	}
	for _, addr := range addrs {
		if _, ok := trusted[addr]; ok {
			return true
		}
	}
	return false
}

// resolveUnion resolves every trusted hostname and returns the union of their
// current addresses. Individual resolution failures are logged and skipped;
// the caller fails closed if the union ends up empty.
func (v *OriginValidator) resolveUnion(ctx context.Context) map[string]struct{} {
	union := make(map[string]struct{})
	for _, host := range v.trustedHosts {
		addrs, err := v.lookup(ctx, host)
		if err != nil {
			v.logger.WarnContext(ctx, "origin check: trusted host resolution failed",
				"host", host,
				"error", err,
			)
			continue
		}
		for _, addr := range addrs {
			union[addr] = struct{}{}
		}
	}
	return union
}

// lookup resolves a single hostname, deduplicating concurrent lookups for the
// same name across in-flight requests.
func (v *OriginValidator) lookup(ctx context.Context, host string) ([]string, error) {
	result, err, _ := v.group.Do(host, func() (any, error) {
		return v.resolver.LookupHost(ctx, host)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// hostFromReferer extracts the hostname from a referer header value.
// Bare hostnames (no scheme) are accepted; unparseable values yield "".
func hostFromReferer(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	if u.Host == "" {
		// Bare hostname such as "www.payfast.co.za".
		if u.Path != "" && !strings.Contains(u.Path, "/") {
			return u.Path
		}
		return ""
	}
	return u.Hostname()
}
