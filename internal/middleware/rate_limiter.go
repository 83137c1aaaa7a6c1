package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// Idle time before a client's bucket is dropped. Zero means ten minutes.
	TTL time.Duration
}

// RateLimiter throttles per client, not globally: one abusive caller
// hammering the OTP endpoints must not starve everyone else. Buckets
// for idle clients age out of the cache.
type RateLimiter struct {
	config  RateLimiterConfig
	buckets *gocache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		buckets: gocache.New(ttl, 2*ttl),
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.bucket(clientKey(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if cached, found := rl.buckets.Get(key); found {
		rl.buckets.SetDefault(key, cached)
		return cached.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	rl.buckets.SetDefault(key, limiter)
	return limiter
}

// clientKey prefers the authenticated caller so a volunteer whose
// mobile connection hops addresses keeps a single bucket. Anonymous
// traffic is keyed by address.
func clientKey(c *gin.Context) string {
	if id := CallerID(c); id != uuid.Nil {
		return id.String()
	}
	return c.ClientIP()
}
