package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds the configuration for the rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// PerClient gives each client IP its own bucket instead of one shared bucket.
	PerClient bool
	// IdleTTL drops per-client buckets unused for this long.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterData struct {
	config  RateLimiterConfig
	global  *rate.Limiter
	mu      sync.Mutex
	clients map[string]*clientLimiter
	swept   time.Time
}

// NewRateLimiterMiddleware creates a new rate limiter middleware
func NewRateLimiterMiddleware(config RateLimiterConfig) gin.HandlerFunc {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	data := &rateLimiterData{
		config:  config,
		global:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		clients: make(map[string]*clientLimiter),
		swept:   time.Now(),
	}

	return func(c *gin.Context) {
		if !data.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (d *rateLimiterData) allow(client string, now time.Time) bool {
	if !d.config.PerClient {
		return d.global.AllowN(now, 1)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.swept) > d.config.IdleTTL {
		for ip, cl := range d.clients {
			if now.Sub(cl.lastSeen) > d.config.IdleTTL {
				delete(d.clients, ip)
			}
		}
		d.swept = now
	}

	cl, ok := d.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(d.config.RequestsPerSecond), d.config.Burst)}
		d.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}
