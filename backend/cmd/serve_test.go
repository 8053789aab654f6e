package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebridge/termsheet-ingest/backend/config"
	"github.com/bluebridge/termsheet-ingest/backend/handler"
	"github.com/bluebridge/termsheet-ingest/backend/middleware"
	"github.com/bluebridge/termsheet-ingest/backend/model"
	"github.com/bluebridge/termsheet-ingest/backend/service"
)

type emptyProducts struct{}

func (emptyProducts) List(context.Context) ([]model.ProductSummary, error) { return nil, nil }

func (emptyProducts) Get(context.Context, string) (*model.ProductDetail, error) {
	return nil, service.ErrProductNotFound
}

func (emptyProducts) Approve(context.Context, string) error { return service.ErrProductNotFound }

func (emptyProducts) ExtractionHistory(context.Context, string) ([]model.ExtractionMetadata, error) {
	return nil, nil
}

func testRouter(t *testing.T) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:    config.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		RateLimit: config.RateLimitConfig{RPS: 100, Burst: 100},
		Auth:      config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: 1},
		Users:     []config.User{{Username: "analyst", Password: "pw"}},
	}

	router := newRouter(cfg, routes{
		auth:       handler.NewAuthHandler(cfg),
		extraction: handler.NewExtractionHandler(nil, service.NewJobStore(), 1<<20),
		products:   handler.NewProductHandler(emptyProducts{}),
	})
	return router, cfg
}

func TestRouterPublicRoutes(t *testing.T) {
	router, _ := testRouter(t)

	for _, path := range []string{"/health", "/api/health", "/api/version"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader), path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/extraction-stream/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterProtectedRoutes(t *testing.T) {
	router, cfg := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/products", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := middleware.GenerateToken("analyst", &cfg.Auth)
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/api/products", http.StatusOK},
		{"GET", "/api/products/XS3184638594", http.StatusNotFound},
		{"PATCH", "/api/products/XS3184638594/approve", http.StatusNotFound},
		{"GET", "/api/auth/me", http.StatusOK},
		{"POST", "/api/upload-termsheet", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tt.status, w.Code, "%s %s", tt.method, tt.path)
	}
}

func TestRouterPreflight(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/upload-termsheet", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTextExtractorMode(t *testing.T) {
	cfg := &config.Config{Extractor: config.ExtractorConfig{Mode: config.ExtractorFitz}}
	assert.IsType(t, &service.FitzExtractor{}, textExtractor(cfg, nil))

	cfg.Extractor.Mode = config.ExtractorMineru
	assert.IsType(t, &service.MineruExtractor{}, textExtractor(cfg, nil))
}
