package web

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const messageRateLimited = "Too many requests"

const limiterCleanupInterval = 5 * time.Minute

var errInvalidRateLimit = errors.New("web.rate_limit.invalid")

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

type clientLimiters struct {
	limiters    sync.Map // client address -> *rate.Limiter
	limit       rate.Limit
	burst       int
	mutex       sync.Mutex
	lastCleanup time.Time
}

func (registry *clientLimiters) forKey(key string) *rate.Limiter {
	if existing, ok := registry.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	actual, _ := registry.limiters.LoadOrStore(key, rate.NewLimiter(registry.limit, registry.burst))
	registry.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket has refilled, i.e. idle clients.
func (registry *clientLimiters) maybeCleanup() {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if time.Since(registry.lastCleanup) < limiterCleanupInterval {
		return
	}
	registry.lastCleanup = time.Now()
	registry.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(registry.burst) {
			registry.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitByClient rejects requests beyond the configured rate with 429, keyed by gin's ClientIP.
func RateLimitByClient(logger *zap.Logger, config RateLimitConfig) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RequestsPerWindow <= 0 || config.Window <= 0 {
		return nil, fmt.Errorf("%w: requests and window must be positive", errInvalidRateLimit)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = config.RequestsPerWindow
	}
	registry := &clientLimiters{
		limit:       rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}

	return func(contextGin *gin.Context) {
		clientAddress := contextGin.ClientIP()
		limiter := registry.forKey(clientAddress)
		if limiter.Allow() {
			contextGin.Next()
			return
		}
		reservation := limiter.Reserve()
		retryAfter := int(math.Max(1, math.Ceil(reservation.Delay().Seconds())))
		reservation.Cancel()

		logger.Warn("rate limit exceeded",
			zap.String("code", "web.rate_limit.exceeded"),
			zap.String("client", clientAddress),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("retry_after", retryAfter))
		contextGin.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		contextGin.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"message": messageRateLimited,
		})
	}, nil
}
