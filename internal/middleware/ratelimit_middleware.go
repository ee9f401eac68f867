package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/keygate-dev/keygate/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const rateLimiterMaxEntries = 10000

type RateLimitMiddlewareConfig struct {
	RequestsPerSecond int
	Burst             int
}

// RateLimitMiddleware applies per-client-IP token buckets to the
// credential-guessing surfaces (login and token exchange). Entries are
// pruned once the map grows past a bound so an address scan cannot pin
// memory.
type RateLimitMiddleware struct {
	config   RateLimitMiddlewareConfig
	limiters map[string]*limiterEntry
	mutex    sync.Mutex
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimitMiddleware(config RateLimitMiddlewareConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		config:   config,
		limiters: make(map[string]*limiterEntry),
	}
}

func (m *RateLimitMiddleware) Init() error {
	return nil
}

func (m *RateLimitMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.config.RequestsPerSecond <= 0 {
			c.Next()
			return
		}

		if !m.allow(c.ClientIP()) {
			log.Warn().Str("clientIp", c.ClientIP()).Str("path", c.Request.URL.Path).Msg("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, config.ErrorResponse{
				Error:            "slow_down",
				ErrorDescription: "Too many requests",
			})
			return
		}

		c.Next()
	}
}

func (m *RateLimitMiddleware) allow(identifier string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, exists := m.limiters[identifier]
	if !exists {
		if len(m.limiters) >= rateLimiterMaxEntries {
			m.evictOldest()
		}
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(m.config.RequestsPerSecond), m.config.Burst),
		}
		m.limiters[identifier] = entry
	}

	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (m *RateLimitMiddleware) evictOldest() {
	oldestKey := ""
	var oldestSeen time.Time

	for key, entry := range m.limiters {
		if oldestKey == "" || entry.lastSeen.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = entry.lastSeen
		}
	}

	if oldestKey != "" {
		delete(m.limiters, oldestKey)
	}
}
