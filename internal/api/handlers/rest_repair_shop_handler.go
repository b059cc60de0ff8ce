package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/services"
)

// RestRepairShopHandler serves the /repairShop settings endpoints.
type RestRepairShopHandler struct {
	subscriptions services.ISubscriptionService
}

// NewRestRepairShopHandler creates a new RestRepairShopHandler.
func NewRestRepairShopHandler(subscriptions services.ISubscriptionService) *RestRepairShopHandler {
	return &RestRepairShopHandler{subscriptions: subscriptions}
}

// SaveInfoSettings handles POST /repairShop/saveInfoSettings.
func (h *RestRepairShopHandler) SaveInfoSettings(c *gin.Context) {
	h.saveSettings(c, false)
}

// SaveInfoOnboarding handles POST /repairShop/saveInfoOnboarding.
func (h *RestRepairShopHandler) SaveInfoOnboarding(c *gin.Context) {
	h.saveSettings(c, true)
}

func (h *RestRepairShopHandler) saveSettings(c *gin.Context, onboarding bool) {
	var in services.ShopSettingsInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.subscriptions.SaveSettings(c.Request.Context(), in, onboarding); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "No user found!"})
			return
		}
		respondError(c, err)
		return
	}
	c.String(http.StatusCreated, "Document updated successfully")
}

// Unsubscribe handles POST /repairShop/unsubscribe.
func (h *RestRepairShopHandler) Unsubscribe(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	err := h.subscriptions.Unsubscribe(c.Request.Context(), in.Email)
	switch {
	case err == nil:
		c.String(http.StatusCreated, "Document updated successfully")
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "No user found!"})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": "Conflict in unsubscribing"})
	default:
		respondError(c, err)
	}
}
