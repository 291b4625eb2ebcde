package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"chatrelay/internal/pkg/ctxutil"
	httputil "chatrelay/internal/pkg/http"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter 按用户限流，未认证请求按客户端 IP
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*visitor
	lastScan time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter perSecond 为每秒请求数，burst 小于 1 时取 1
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*visitor),
		lastScan: time.Now(),
	}
}

// Allow 判断 key 当前是否允许通过
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastScan) > limiterIdleTTL {
		for k, v := range r.limiters {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(r.limiters, k)
			}
		}
		r.lastScan = now
	}

	v, ok := r.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware gin 中间件
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid, ok := ctxutil.GetUserID(c.Request.Context()); ok {
			key = "user:" + uid
		}
		if !r.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				httputil.NewErrorResponse(httputil.CodeTooManyRequests, "请求过于频繁"))
			return
		}
		c.Next()
	}
}
