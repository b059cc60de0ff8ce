package middleware

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/services"
)

// Runtime keys read from the configuration collection.
const (
	RateLimitBucketSizeKey = "RATE_LIMIT_BUCKET_SIZE"
	RateLimitRefillRateKey = "RATE_LIMIT_REFILL_RATE"
)

// clientLimiter stores the token bucket of one client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints.
type RateLimiterMiddleware struct {
	clients       map[string]*clientLimiter
	mu            sync.Mutex
	cfg           *config.Config          // For defaults
	configService services.IConfigService // For runtime overrides
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config, configService services.IConfigService) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:       make(map[string]*clientLimiter),
		cfg:           cfg,
		configService: configService,
	}
	go rm.cleanupClients()
	return rm
}

// getClientIdentifier keys a client by IP and the SPA session header.
func getClientIdentifier(c *gin.Context) string {
	return fmt.Sprintf("%s|%s", c.ClientIP(), c.GetHeader("X-SPA"))
}

// getClientLimiter retrieves or creates the limiter for a client and applies
// the current limits to it.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, refill, burst int) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cl, exists := rm.clients[identifier]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(refill), burst)}
		rm.clients[identifier] = cl
	} else {
		if cl.limiter.Limit() != rate.Limit(refill) {
			cl.limiter.SetLimit(rate.Limit(refill))
		}
		if cl.limiter.Burst() != burst {
			cl.limiter.SetBurst(burst)
		}
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// cleanupClients periodically removes old client entries from the map.
func (rm *RateLimiterMiddleware) cleanupClients() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rm.mu.Lock()
		count := 0
		for id, client := range rm.clients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(rm.clients, id)
				count++
			}
		}
		rm.mu.Unlock()
		if count > 0 {
			log.Printf("Rate limiter cleanup removed %d old client entries.", count)
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		burst := rm.configService.GetInt(ctx, RateLimitBucketSizeKey, rm.cfg.RateLimitBucketSize)
		refill := rm.configService.GetInt(ctx, RateLimitRefillRateKey, rm.cfg.RateLimitRefillRate)
		if burst <= 0 || refill <= 0 {
			c.Next()
			return
		}

		clientKey := getClientIdentifier(c)
		if !rm.getClientLimiter(clientKey, refill, burst).Allow() {
			log.Printf("Rate limit exceeded for client: %s on %s %s", clientKey, c.Request.Method, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
