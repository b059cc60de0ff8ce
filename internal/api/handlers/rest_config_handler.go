package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/K3mp3/FixMatch/internal/services"
)

// RestConfigHandler handles requests for the /config and /health endpoints.
type RestConfigHandler struct {
	configService services.IConfigService
	mongo         MongoPinger
	redis         RedisPinger
}

// MongoPinger is satisfied by *mongo.Client.
type MongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewRestConfigHandler creates a new RestConfigHandler. Either pinger may be nil.
func NewRestConfigHandler(configService services.IConfigService, mongo MongoPinger, redis RedisPinger) *RestConfigHandler {
	return &RestConfigHandler{configService: configService, mongo: mongo, redis: redis}
}

// GetPublicConfig returns the publicly accessible configuration parameters.
// Handles GET /config
func (h *RestConfigHandler) GetPublicConfig(c *gin.Context) {
	publicConfig, err := h.configService.GetAllPublic(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve configuration"})
		return
	}
	c.JSON(http.StatusOK, publicConfig)
}

// Health reports whether the backing stores answer. Handles GET /health
func (h *RestConfigHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	if h.mongo != nil {
		checks["mongo"] = "ok"
		if err := h.mongo.Ping(ctx, readpref.Primary()); err != nil {
			checks["mongo"] = err.Error()
			healthy = false
		}
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
