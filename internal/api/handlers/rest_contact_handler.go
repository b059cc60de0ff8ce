package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/services"
)

// RestContactHandler serves the public contact form.
type RestContactHandler struct {
	contact services.IContactService
}

// NewRestContactHandler creates a new RestContactHandler.
func NewRestContactHandler(contact services.IContactService) *RestContactHandler {
	return &RestContactHandler{contact: contact}
}

// ContactUs handles POST /contact/contactUs.
func (h *RestContactHandler) ContactUs(c *gin.Context) {
	var in services.ContactInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.contact.Send(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Email sent successfully"})
}
