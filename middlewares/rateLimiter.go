package middlewares

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter is a fixed-window limiter keyed by tenant, or client IP before auth.
// Counters live in Redis; when Redis is absent or failing an in-process token bucket is used.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	logger *logrus.Logger

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
		local:  map[string]*rate.Limiter{},
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	subject := "ip:" + c.ClientIP()
	if rc, ok := appctx.RequestContextFrom(c.Request.Context()); ok {
		subject = "tenant:" + rc.TenantID
	}
	if !rl.allow(c, subject) {
		AbortWithError(c, http.StatusTooManyRequests, utils.CodeRateLimited,
			fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())))
		return
	}
	c.Next()
}

func (rl *RateLimiter) allow(c *gin.Context, subject string) bool {
	if rl.client == nil {
		return rl.allowLocal(subject)
	}
	ctx := c.Request.Context()
	secs := int64(rl.window.Seconds())
	if secs < 1 {
		secs = 1
	}
	bucket := time.Now().Unix() / secs
	key := fmt.Sprintf("ratelimit:%s:%d", subject, bucket)
	count, err := rl.client.Incr(ctx, key).Result()
	if err == nil && count == 1 {
		err = rl.client.Expire(ctx, key, rl.window).Err()
	}
	if err != nil {
		if rl.logger != nil {
			rl.logger.WithField("module", "RateLimiter").Warn("redis unavailable; using in-process limiter: " + err.Error())
		}
		return rl.allowLocal(subject)
	}
	return count <= rl.limit
}

func (rl *RateLimiter) allowLocal(subject string) bool {
	rl.mu.Lock()
	l, ok := rl.local[subject]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.limit)/rl.window.Seconds()), int(rl.limit))
		rl.local[subject] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}
