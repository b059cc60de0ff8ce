package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/services"
	"github.com/K3mp3/FixMatch/internal/validation"
)

// ContextKeyErrorDetail marks requests whose 500 responses may carry the
// underlying error text.
const ContextKeyErrorDetail = "errorDetail"

// ErrorDetail exposes internal error text when enabled is true.
func ErrorDetail(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyErrorDetail, enabled)
		c.Next()
	}
}

// statusFor maps a service error onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoContent):
		return http.StatusNoContent
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status from statusFor.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNoContent:
		c.Status(status)
	case http.StatusInternalServerError:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		body := gin.H{"error": "Internal Server Error"}
		if c.GetBool(ContextKeyErrorDetail) {
			body["detail"] = err.Error()
		}
		c.JSON(status, body)
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

// bindJSON decodes the body into obj and answers 400 when that fails.
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
		return false
	}
	return true
}
