package api_test

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HKCalvinYau/wati-automation/internal/api"
	"github.com/HKCalvinYau/wati-automation/internal/service"
	"github.com/HKCalvinYau/wati-automation/internal/store"
	"github.com/HKCalvinYau/wati-automation/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(api.SecurityHeadersMiddleware())
	router.GET("/api/v1/templates", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/index.html", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	router := gin.New()
	router.Use(api.RateLimitMiddleware(0.001, 2))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"), "other clients have their own bucket")
}

func TestRequestIDMiddleware_PropagatesHeader(t *testing.T) {
	router := gin.New()
	router.Use(api.RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(api.RequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(api.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(api.RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))
}

func TestErrorHandlerMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(api.ErrorHandlerMiddleware())
	router.GET("/bad", func(c *gin.Context) {
		_ = c.Error(api.WrapError(assert.AnError, http.StatusBadRequest, "invalid request"))
	})
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("lookup: %w", store.ErrNotFound))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "invalid request", env.Message)
	assert.Equal(t, assert.AnError.Error(), env.Detail)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "template not found", decode(t, w).Message)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", utils.ErrEmptyID), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", service.ErrBackupNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", store.ErrDuplicate), http.StatusConflict},
		{fmt.Errorf("wrap: %w", store.ErrCorruptData), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, api.StatusForError(tt.err), tt.err.Error())
	}
}
