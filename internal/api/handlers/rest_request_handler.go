package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/services"
)

// maxPDFSize caps an offer attachment.
const maxPDFSize = 10 << 20

// RestRequestHandler serves the /contactRepairShops endpoints.
type RestRequestHandler struct {
	requests services.IRequestService
}

// NewRestRequestHandler creates a new RestRequestHandler.
func NewRestRequestHandler(requests services.IRequestService) *RestRequestHandler {
	return &RestRequestHandler{requests: requests}
}

// CreateRequest handles POST /contactRepairShops/contactRepairShops.
func (h *RestRequestHandler) CreateRequest(c *gin.Context) {
	var in services.CreateRequestInput
	if !bindJSON(c, &in) {
		return
	}
	id, err := h.requests.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Request saved successfully", "id": id})
}

// RetrieveRequests handles POST /contactRepairShops/retrieveRequests.
func (h *RestRequestHandler) RetrieveRequests(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	requests, err := h.requests.RetrieveForShop(c.Request.Context(), in.Email)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requests)
}

// AnswerRequest handles POST /contactRepairShops/answerRequest. The offer
// arrives as JSON in the messageData form field, with an optional pdfFile.
func (h *RestRequestHandler) AnswerRequest(c *gin.Context) {
	var in services.AnswerInput
	if err := json.Unmarshal([]byte(c.PostForm("messageData")), &in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid messageData"})
		return
	}

	var pdf *services.Attachment
	if header, err := c.FormFile("pdfFile"); err == nil {
		if header.Size > maxPDFSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PDF file too large"})
			return
		}
		f, err := header.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			respondError(c, err)
			return
		}
		pdf = &services.Attachment{FileName: header.Filename, Data: data}
	}

	if err := h.requests.Answer(c.Request.Context(), in, pdf); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.String(http.StatusNotFound, "No document found to update")
			return
		}
		respondError(c, err)
		return
	}
	c.String(http.StatusCreated, "Document updated successfully")
}

// GetPDF handles GET /contactRepairShops/getPdf/:filename.
func (h *RestRequestHandler) GetPDF(c *gin.Context) {
	name := c.Param("filename")
	data, err := h.requests.GetPDF(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "data": base64.StdEncoding.EncodeToString(data)})
}

// RetrieveUserSentRequests handles POST /contactRepairShops/retrieveUserSentRequests.
func (h *RestRequestHandler) RetrieveUserSentRequests(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	requests, err := h.requests.RetrieveUserSent(c.Request.Context(), in.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requests)
}

// DeleteJob handles POST /contactRepairShops/deleteJob.
func (h *RestRequestHandler) DeleteJob(c *gin.Context) {
	var in struct {
		RequestID         string `json:"requestId" binding:"required,notblank"`
		CustomerMessageID string `json:"customerMessageId" binding:"required,notblank"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if err := h.requests.DeleteJob(c.Request.Context(), in.RequestID, in.CustomerMessageID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Job not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FetchJobResponse handles POST /contactRepairShops/fetchJobResponse.
func (h *RestRequestHandler) FetchJobResponse(c *gin.Context) {
	var in struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing ID in request"})
		return
	}
	answers, err := h.requests.FetchJobResponse(c.Request.Context(), in.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": answers})
}
