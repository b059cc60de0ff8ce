package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/K3mp3/FixMatch/internal/email"
)

// MockEmailStore is the part of *redis.Client the service API reads captured
// emails through.
type MockEmailStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ServiceAPIHandler serves operational commands on the internal port.
type ServiceAPIHandler struct {
	store        MockEmailStore
	shutdownChan chan<- struct{}
	pollEvery    time.Duration
	pollTimes    int
}

// NewServiceAPIHandler creates a new ServiceAPIHandler.
func NewServiceAPIHandler(store MockEmailStore, shutdownChan chan<- struct{}) *ServiceAPIHandler {
	return &ServiceAPIHandler{
		store:        store,
		shutdownChan: shutdownChan,
		pollEvery:    200 * time.Millisecond,
		pollTimes:    10,
	}
}

// WithPolling overrides how long getTestEmail waits for a message.
func (h *ServiceAPIHandler) WithPolling(every time.Duration, times int) *ServiceAPIHandler {
	h.pollEvery = every
	h.pollTimes = times
	return h
}

// HandleRequest handles POST /api with {"method": ..., "arguments": ...}.
func (h *ServiceAPIHandler) HandleRequest(c *gin.Context) {
	var req struct {
		Method    string          `json:"method"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
		return
	}

	switch req.Method {
	case "shutdown":
		fmt.Println("Received shutdown command via Service API")
		c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
		select {
		case h.shutdownChan <- struct{}{}:
			fmt.Println("Shutdown signal sent successfully.")
		default:
			fmt.Println("Shutdown channel already signaled or blocked.")
		}
	case "getTestEmail":
		h.getTestEmail(c, req.Arguments)
	default:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
	}
}

// getTestEmail returns the captured email for ["templateId", "email"] and
// removes it from Redis.
func (h *ServiceAPIHandler) getTestEmail(c *gin.Context, arguments json.RawMessage) {
	var args []string
	if err := json.Unmarshal(arguments, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [templateId, email]"})
		return
	}
	key := email.MockEmailKey(args[1], args[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var raw string
	found := false
	for i := 0; i < h.pollTimes; i++ {
		val, err := h.store.Get(ctx, key).Result()
		if err == nil {
			raw = val
			found = true
			h.store.Del(ctx, key)
			break
		}
		if !errors.Is(err, redis.Nil) {
			log.Printf("Service API: Error getting key %s from Redis: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(h.pollEvery)
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", key)})
		return
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		log.Printf("Service API: Error unmarshalling email data from key %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
