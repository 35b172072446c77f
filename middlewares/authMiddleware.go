package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/utils"
)

// AuthMiddleware turns a bearer JWT into the request's RequestContext.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		const bearer = "Bearer "
		if len(auth) <= len(bearer) || !strings.EqualFold(auth[:len(bearer)], bearer) {
			AbortWithError(c, http.StatusUnauthorized, utils.CodeUnauthorized, "bearer token required")
			return
		}

		validate, err := utils.JwtValidate(strings.TrimSpace(auth[len(bearer):]))
		if err != nil || !validate.Valid {
			AbortWithError(c, http.StatusUnauthorized, utils.CodeUnauthorized, "unauthorized")
			return
		}
		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.TenantId == "" || claim.UserId == "" {
			AbortWithError(c, http.StatusUnauthorized, utils.CodeUnauthorized, "token carries no tenant or user")
			return
		}

		ctx := c.Request.Context()
		rc := appctx.RequestContext{
			TenantID:  claim.TenantId,
			UserID:    claim.UserId,
			UserEmail: claim.Email,
			Role:      claim.Role,
			TraceID:   TraceID(ctx),
		}
		c.Request = c.Request.WithContext(appctx.WithRequestContext(ctx, rc))
		c.Next()
	}
}

// RequireRole lets only callers with role through.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, ok := appctx.RequestContextFrom(c.Request.Context())
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, utils.CodeUnauthorized, "unauthorized")
			return
		}
		if rc.Role != role {
			AbortWithError(c, http.StatusForbidden, utils.CodeForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
