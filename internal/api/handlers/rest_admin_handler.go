package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/services"
)

// RestAdminHandler serves the /admin panel endpoints.
type RestAdminHandler struct {
	content   services.IContentService
	templates services.IEmailTemplateService
}

// NewRestAdminHandler creates a new RestAdminHandler.
func NewRestAdminHandler(content services.IContentService, templates services.IEmailTemplateService) *RestAdminHandler {
	return &RestAdminHandler{content: content, templates: templates}
}

// GetRepairShops handles GET /admin/getRepairShops.
func (h *RestAdminHandler) GetRepairShops(c *gin.Context) {
	shops, err := h.content.ListProspects(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, []models.ProspectShop{})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shops)
}

// DeleteRepairShop handles POST /admin/deleteRepairShop.
func (h *RestAdminHandler) DeleteRepairShop(c *gin.Context) {
	var in emailBody
	if !bindJSON(c, &in) {
		return
	}
	if err := h.content.DeleteProspect(c.Request.Context(), in.Email); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Repair shop not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Repair shop deleted successfully"})
}

// SaveRepairShop handles POST /admin/saveRepairShop.
func (h *RestAdminHandler) SaveRepairShop(c *gin.Context) {
	var in models.ProspectShop
	if !bindJSON(c, &in) {
		return
	}
	if err := h.content.SaveProspect(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Repair shop saved successfully"})
}

// UploadImage handles POST /admin/upload-image (multipart: file, articleId).
func (h *RestAdminHandler) UploadImage(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	image, err := readAttachment(header)
	if err != nil {
		respondError(c, err)
		return
	}
	uploaded, err := h.content.UploadImage(c.Request.Context(), c.PostForm("articleId"), *image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, uploaded)
}

// SaveContent handles POST /admin/saveContent (multipart: content, articleId, image).
func (h *RestAdminHandler) SaveContent(c *gin.Context) {
	var image *services.Attachment
	if header, err := c.FormFile("image"); err == nil {
		if image, err = readAttachment(header); err != nil {
			respondError(c, err)
			return
		}
	}
	err := h.content.SaveArticle(c.Request.Context(), c.PostForm("articleId"), c.PostForm("content"), image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Article saved successfully"})
}

// FetchContent handles GET /admin/fetchContent.
func (h *RestAdminHandler) FetchContent(c *gin.Context) {
	articles, err := h.content.FetchArticles(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, []models.Article{})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, articles)
}

// SaveEmailTemplate handles PUT /admin/emailTemplates.
func (h *RestAdminHandler) SaveEmailTemplate(c *gin.Context) {
	var in models.EmailTemplate
	if !bindJSON(c, &in) {
		return
	}
	if err := h.templates.SaveTemplate(c.Request.Context(), &in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

// DeleteEmailTemplate handles DELETE /admin/emailTemplates/:templateId/:locale.
func (h *RestAdminHandler) DeleteEmailTemplate(c *gin.Context) {
	if err := h.templates.DeleteTemplate(c.Request.Context(), c.Param("templateId"), c.Param("locale")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func readAttachment(header *multipart.FileHeader) (*services.Attachment, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &services.Attachment{FileName: header.Filename, Data: data}, nil
}
