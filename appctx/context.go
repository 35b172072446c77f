package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> models).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyRequest       = ContextKey("RequestContext")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeySkipTenantScope marks a statement as deliberately cross-tenant.
	// Use sparingly (reaper, outbox dispatcher, internal ops only).
	ContextKeySkipTenantScope = ContextKey("SkipTenantScope")
)

const RoleAdmin = "admin"

// RequestContext carries the caller identity for one request. It is passed
// explicitly into workflows and repositories instead of being read from ambient state.
type RequestContext struct {
	TenantID  string
	UserID    string
	UserEmail string
	Role      string
	TraceID   string
}

func (rc RequestContext) Valid() bool { return rc.TenantID != "" && rc.UserID != "" }

func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ContextKeyRequest, rc)
}

func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(ContextKeyRequest).(RequestContext)
	return rc, ok
}

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

func SetCorrelationId(ctx context.Context, correlationId string) context.Context {
	return Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetCorrelationId(ctx context.Context) string {
	v, _ := GetString(ctx, ContextKeyCorrelationId)
	return v
}

// CrossTenant marks ctx so the tenant guard lets unscoped statements through.
func CrossTenant(ctx context.Context) context.Context {
	return Set(ctx, ContextKeySkipTenantScope, true)
}

func IsCrossTenant(ctx context.Context) bool {
	v, ok := GetBool(ctx, ContextKeySkipTenantScope)
	return ok && v
}
