package handlers_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/K3mp3/FixMatch/internal/api/handlers"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/services"
)

func setupAdminRouter(t *testing.T) (*gin.Engine, *MockContentService, *MockEmailTemplateService) {
	r := newEngine(t)
	content := new(MockContentService)
	templates := new(MockEmailTemplateService)
	h := handlers.NewRestAdminHandler(content, templates)
	g := r.Group("/admin")
	g.GET("/getRepairShops", h.GetRepairShops)
	g.POST("/deleteRepairShop", h.DeleteRepairShop)
	g.POST("/saveRepairShop", h.SaveRepairShop)
	g.POST("/upload-image", h.UploadImage)
	g.POST("/saveContent", h.SaveContent)
	g.GET("/fetchContent", h.FetchContent)
	g.PUT("/emailTemplates", h.SaveEmailTemplate)
	g.DELETE("/emailTemplates/:templateId/:locale", h.DeleteEmailTemplate)
	return r, content, templates
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req, _ := http.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRestAdminHandler_Prospects(t *testing.T) {
	r, content, _ := setupAdminRouter(t)
	content.On("ListProspects", mock.Anything).Return([]models.ProspectShop{{Email: "shop@example.com", Name: "Verkstan", Location: "Umeå"}}, nil).Once()
	content.On("SaveProspect", mock.Anything, mock.MatchedBy(func(s models.ProspectShop) bool { return s.Name == "Verkstan" })).Return(nil)
	content.On("DeleteProspect", mock.Anything, "shop@example.com").Return(nil)
	content.On("DeleteProspect", mock.Anything, "ghost@example.com").Return(services.ErrNotFound)

	w := doJSON(r, http.MethodGet, "/admin/getRepairShops", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Verkstan")

	w = doJSON(r, http.MethodPost, "/admin/saveRepairShop", gin.H{"email": "shop@example.com", "name": "Verkstan", "location": "Umeå"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/saveRepairShop", gin.H{"email": "shop@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/deleteRepairShop", gin.H{"email": "shop@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/deleteRepairShop", gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Repair shop not found", decodeMap(t, w)["error"])
	content.AssertExpectations(t)
}

func TestRestAdminHandler_GetRepairShops_Empty(t *testing.T) {
	r, content, _ := setupAdminRouter(t)
	content.On("ListProspects", mock.Anything).Return(nil, services.ErrNotFound)

	w := doJSON(r, http.MethodGet, "/admin/getRepairShops", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestRestAdminHandler_UploadImage(t *testing.T) {
	r, content, _ := setupAdminRouter(t)
	content.On("UploadImage", mock.Anything, "article-1", services.Attachment{FileName: "cover.jpg", Data: []byte("jpeg")}).
		Return(&services.UploadedImage{Location: "https://cdn.example/articles/article-1/cover.jpg", ArticleID: "article-1"}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/admin/upload-image", map[string]string{"articleId": "article-1"}, "file", "cover.jpg", []byte("jpeg")))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://cdn.example/articles/article-1/cover.jpg", decodeMap(t, w)["location"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/admin/upload-image", map[string]string{"articleId": "article-1"}, "", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file uploaded", decodeMap(t, w)["error"])
}

func TestRestAdminHandler_SaveContent(t *testing.T) {
	r, content, _ := setupAdminRouter(t)
	content.On("SaveArticle", mock.Anything, "article-1", "<p>News</p>", (*services.Attachment)(nil)).Return(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/admin/saveContent", map[string]string{"articleId": "article-1", "content": "<p>News</p>"}, "", "", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Article saved successfully", decodeMap(t, w)["message"])
	content.AssertExpectations(t)
}

func TestRestAdminHandler_FetchContent(t *testing.T) {
	r, content, _ := setupAdminRouter(t)
	content.On("FetchArticles", mock.Anything).Return([]models.Article{{ArticleID: "article-1", Content: "<p>News</p>"}}, nil)

	w := doJSON(r, http.MethodGet, "/admin/fetchContent", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"articleId":"article-1"`)
}

func TestRestAdminHandler_EmailTemplates(t *testing.T) {
	r, _, templates := setupAdminRouter(t)
	templates.On("SaveTemplate", mock.Anything, mock.MatchedBy(func(tmpl *models.EmailTemplate) bool {
		return tmpl.TemplateID == "booking_accepted" && tmpl.Locale == "sv-SE"
	})).Return(nil)
	templates.On("DeleteTemplate", mock.Anything, "booking_accepted", "sv-SE").Return(nil)
	templates.On("DeleteTemplate", mock.Anything, "missing", "sv-SE").Return(services.ErrNotFound)

	w := doJSON(r, http.MethodPut, "/admin/emailTemplates", gin.H{
		"template_id": "booking_accepted", "locale": "sv-SE", "subject": "Bokning {{.date}}", "body": "Hej {{.name}}",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "booking_accepted", decodeMap(t, w)["template_id"])

	w = doJSON(r, http.MethodDelete, "/admin/emailTemplates/booking_accepted/sv-SE", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodDelete, "/admin/emailTemplates/missing/sv-SE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	templates.AssertExpectations(t)
}
