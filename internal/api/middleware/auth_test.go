package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/K3mp3/FixMatch/internal/api/middleware"
	"github.com/K3mp3/FixMatch/internal/auth"
)

const testSecret = "test-secret"

func setupAdminEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	admin := r.Group("/admin", middleware.AuthMiddleware(testSecret), middleware.AdminMiddleware())
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": c.GetString(middleware.ContextKeyUserID)})
	})
	return r
}

func tokenFor(t *testing.T, isAdmin bool) string {
	t.Helper()
	token, err := auth.GenerateJWT(auth.Identity{UID: "uid-1", Email: "admin@fixmatch.se", IsAdmin: isAdmin}, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	r := setupAdminEngine()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"not admin", "Bearer " + tokenFor(t, false), http.StatusForbidden},
		{"admin", "Bearer " + tokenFor(t, true), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), "uid-1")
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORSMiddleware(), middleware.SecurityHeaders())
	r.POST("/booking/saveDate", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/booking/saveDate", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
