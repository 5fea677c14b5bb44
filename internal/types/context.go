package types

import "context"

// Context Keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	tenantIDKey  contextKey = "tenant_id"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTenantID stores the tenant ID resolved for the current request in the
// context. It is set by the notification dispatcher once the invoice lookup
// succeeds, so downstream log lines carry the tenant.
func WithTenantID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// GetTenantID retrieves the tenant ID from the context. Returns 0 when no
// tenant has been resolved yet.
func GetTenantID(ctx context.Context) int64 {
	id, _ := ctx.Value(tenantIDKey).(int64)
	return id
}
