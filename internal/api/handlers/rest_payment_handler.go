package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/services"
)

// RestPaymentHandler serves booking fee payments and checkout verification.
type RestPaymentHandler struct {
	payments      services.IPaymentService
	subscriptions services.ISubscriptionService
}

// NewRestPaymentHandler creates a new RestPaymentHandler.
func NewRestPaymentHandler(payments services.IPaymentService, subscriptions services.ISubscriptionService) *RestPaymentHandler {
	return &RestPaymentHandler{payments: payments, subscriptions: subscriptions}
}

// CreateIntent handles POST /payments/create-intent.
func (h *RestPaymentHandler) CreateIntent(c *gin.Context) {
	var in services.PaymentIntentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	res, err := h.payments.CreateIntent(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// VerifyStripeSub handles POST /stripe/verifyStripeSub.
func (h *RestPaymentHandler) VerifyStripeSub(c *gin.Context) {
	var in struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "message": "Session ID is required"})
		return
	}
	status, err := h.subscriptions.VerifySubscription(c.Request.Context(), in.SessionID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, status)
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"valid": false, "message": "Session not found"})
	default:
		log.Printf("Error verifying subscription for session %s: %v", in.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "message": "Error verifying subscription status"})
	}
}
