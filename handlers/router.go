package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/metrics"
	"github.com/huminex/payroll_backend/middlewares"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
	"github.com/huminex/payroll_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	DB       *gorm.DB
	Commands *workflow.PayrollCommands
	Queries  *workflow.PayrollQueries
	Outbox   *models.OutboxRepository
	Redis    *redis.Client
	Logger   *logrus.Logger
	Settings config.Settings
}

func NewRouter(deps Deps) *gin.Engine {
	RegisterValidators()
	logger := deps.Logger
	if logger == nil {
		logger = config.GetLogger()
	}

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(logrus.Fields{"module": "router", "traceId": middlewares.TraceID(c.Request.Context())}).
			Errorf("panic recovered: %v", recovered)
		middlewares.AbortWithError(c, http.StatusInternalServerError, utils.CodeInternal, "internal error")
	}))
	r.Use(metrics.GinMiddleware())
	r.Use(middlewares.RequestLogger(logger))
	r.Use(cors.New(corsConfig(deps.Settings)))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1", middlewares.AuthMiddleware())
	if deps.Settings.RateLimitEnabled {
		limiter := middlewares.NewRateLimiter(deps.Redis, deps.Settings.RateLimitMaxRequests, deps.Settings.RateLimitWindow, logger)
		api.Use(limiter.RateLimitMiddleware)
	}
	api.Use(middlewares.LoaderMiddleware(deps.DB))
	payroll := &PayrollHandler{Commands: deps.Commands, Queries: deps.Queries, Logger: logger}
	payroll.Register(api)

	ops := r.Group("/internal/ops", middlewares.AuthMiddleware(), middlewares.RequireRole(appctx.RoleAdmin))
	(&OpsHandler{Outbox: deps.Outbox, Logger: logger, Now: func() time.Time { return time.Now().UTC() }}).Register(ops)

	r.NoRoute(func(c *gin.Context) {
		middlewares.AbortWithError(c, http.StatusNotFound, utils.CodeNotFound, "route not found")
	})
	return r
}

func corsConfig(settings config.Settings) cors.Config {
	corsConfig := cors.DefaultConfig()
	// In production only the configured origins are allowed; an empty list denies all.
	if settings.IsProduction() {
		corsConfig.AllowOrigins = settings.CORSAllowedOrigins
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", HeaderIdempotencyKey, middlewares.HeaderCorrelationId)
	corsConfig.AddExposeHeaders("Content-Length", HeaderIdempotencyReplayed, middlewares.HeaderCorrelationId)
	return corsConfig
}
