package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/services"
)

// RestBookingHandler serves the /booking endpoints.
type RestBookingHandler struct {
	bookings services.IBookingService
	requests services.IRequestService
}

// NewRestBookingHandler creates a new RestBookingHandler.
func NewRestBookingHandler(bookings services.IBookingService, requests services.IRequestService) *RestBookingHandler {
	return &RestBookingHandler{bookings: bookings, requests: requests}
}

type uidBody struct {
	UID string `json:"uid" binding:"required,notblank"`
}

type emailBody struct {
	Email string `json:"email" binding:"required,email"`
}

type requestIDBody struct {
	RequestID string `json:"requestId" binding:"required,notblank"`
}

// SaveDate handles POST /booking/saveDate.
func (h *RestBookingHandler) SaveDate(c *gin.Context) {
	var in services.ProposeInput
	if !bindJSON(c, &in) {
		return
	}
	id, err := h.bookings.Propose(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Dates saved successfully", "id": id})
}

// SaveAcceptedDate handles POST /booking/saveAcceptedDate.
func (h *RestBookingHandler) SaveAcceptedDate(c *gin.Context) {
	var in services.AcceptInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.bookings.Accept(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, "Dates saved successfully and email sent")
}

// SaveNewDates handles POST /booking/saveNewDates.
func (h *RestBookingHandler) SaveNewDates(c *gin.Context) {
	var in services.SuggestInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.bookings.SuggestNewDates(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, "Dates saved successfully and email sent")
}

// SaveNewAcceptedDates handles POST /booking/saveNewAcceptedDates.
func (h *RestBookingHandler) SaveNewAcceptedDates(c *gin.Context) {
	var in services.AcceptSuggestedInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.bookings.AcceptSuggested(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, "Dates saved successfully")
}

// UpdateSavedDates handles POST /booking/updateSavedDates.
func (h *RestBookingHandler) UpdateSavedDates(c *gin.Context) {
	var in services.RescheduleInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.bookings.Reschedule(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, "Dates saved successfully")
}

// FetchBooking handles POST /booking/fetchBooking.
func (h *RestBookingHandler) FetchBooking(c *gin.Context) {
	var in requestIDBody
	if !bindJSON(c, &in) {
		return
	}
	bookings, err := h.bookings.FetchBooking(c.Request.Context(), in.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": bookings})
}

// FetchBookings handles POST /booking/fetchBookings.
func (h *RestBookingHandler) FetchBookings(c *gin.Context) {
	var in uidBody
	if !bindJSON(c, &in) {
		return
	}
	bookings, err := h.bookings.FetchBookings(c.Request.Context(), in.UID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bookings": bookings})
}

// FetchAcceptedBookings handles POST /booking/fetchAcceptedBookings.
func (h *RestBookingHandler) FetchAcceptedBookings(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	bookings, err := h.bookings.FetchAcceptedBookings(c.Request.Context(), in.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bookings": bookings})
}

// FetchAcceptedBookingsForRepairShop handles POST /booking/fetchAcceptedBookingsForRepairShop.
func (h *RestBookingHandler) FetchAcceptedBookingsForRepairShop(c *gin.Context) {
	var in uidBody
	if !bindJSON(c, &in) {
		return
	}
	bookings, err := h.bookings.FetchAcceptedBookingsForRepairShop(c.Request.Context(), in.UID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bookings": bookings})
}

// FetchBookingsWithNewDates handles POST /booking/fetchBookingsWithNewDates.
func (h *RestBookingHandler) FetchBookingsWithNewDates(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	bookings, err := h.bookings.FetchBookingsWithNewDates(c.Request.Context(), in.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bookings": bookings})
}

// FetchRequestData handles POST /booking/fetchRequestData. The body is an
// object whose values are request ids.
func (h *RestBookingHandler) FetchRequestData(c *gin.Context) {
	var body map[string]string
	if !bindJSON(c, &body) {
		return
	}
	ids := make([]string, 0, len(body))
	for _, id := range body {
		ids = append(ids, id)
	}
	requests, err := h.requests.FindByRequestIDs(c.Request.Context(), ids)
	if err != nil && statusFor(err) != http.StatusNotFound {
		respondError(c, err)
		return
	}
	if len(requests) == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "No requests found!"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"requests": requests})
}

// CancelAcceptedBooking handles POST /booking/cancelAcceptedBooking.
func (h *RestBookingHandler) CancelAcceptedBooking(c *gin.Context) {
	var in services.CustomerCancelInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.bookings.CancelByCustomer(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Booking cancelled successfully",
		"refundStatus":  res.RefundStatus,
		"refundDetails": res.RefundDetails,
		"refundError":   res.RefundError,
	})
}

// CancelBookingForRepairShop handles POST /booking/cancelBookingForRepairShop.
func (h *RestBookingHandler) CancelBookingForRepairShop(c *gin.Context) {
	var in services.ShopCancelInput
	if !bindJSON(c, &in) {
		return
	}
	if _, err := h.bookings.CancelByRepairShop(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, "Booking cancelled successfully")
}
