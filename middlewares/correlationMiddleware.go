package middlewares

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huminex/payroll_backend/appctx"
	"go.opentelemetry.io/otel/trace"
)

const HeaderCorrelationId = "X-Correlation-Id"

// CorrelationMiddleware attaches the caller's correlation id, or a new one, to the request.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(HeaderCorrelationId)
		if cid == "" || len(cid) > 64 {
			cid = uuid.NewString()
		}
		c.Header(HeaderCorrelationId, cid)
		c.Request = c.Request.WithContext(appctx.SetCorrelationId(c.Request.Context(), cid))
		c.Next()
	}
}

// TraceID is the active span's trace id, or the correlation id when nothing is traced.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return appctx.GetCorrelationId(ctx)
}
