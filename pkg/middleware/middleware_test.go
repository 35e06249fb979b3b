package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/verification-service/pkg/errors"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/metrics"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	config := DefaultConfig("verification-service", slog.New(slog.NewTextHandler(io.Discard, nil)))
	config.Metrics = metrics.New(metrics.DefaultConfig("verification-service"))
	Setup(router, config)
	return router
}

type scanBody struct {
	StaffCode string `json:"staffCode" binding:"required,staff_code"`
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	router := newTestRouter()
	router.POST("/scan", WrapHandler(func(c *gin.Context) error {
		return errors.ErrScanRejected("MISMATCH", "XY", "AB")
	}))

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	assert.NotEmpty(t, w.Header().Get(HeaderCorrelationID))

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, errors.CodeScanRejected, resp.Code)
	assert.Equal(t, "MISMATCH", resp.Details["reason"])
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "/scan", resp.Path)
}

func TestErrorHandler_PlainErrorIsInternal(t *testing.T) {
	router := newTestRouter()
	router.GET("/boom", WrapHandler(func(c *gin.Context) error {
		return io.ErrUnexpectedEOF
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestContextCarriesIDs(t *testing.T) {
	router := newTestRouter()
	router.GET("/ctx", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"requestId":     ctx.Value(logging.RequestIDKey),
			"correlationId": ctx.Value(logging.CorrelationIDKey),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set(HeaderCorrelationID, "corr-9")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "corr-9", body["correlationId"])
	assert.NotEmpty(t, body["requestId"])
}

func TestBindAndValidate_CustomTags(t *testing.T) {
	router := newTestRouter()
	router.POST("/bind", WrapHandler(func(c *gin.Context) error {
		var body scanBody
		if appErr := BindAndValidate(c, &body); appErr != nil {
			return appErr
		}
		c.Status(http.StatusNoContent)
		return nil
	}))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"staffCode":"T001"}`, http.StatusNoContent},
		{"missing", `{}`, http.StatusBadRequest},
		{"bad characters", `{"staffCode":"T 001"}`, http.StatusBadRequest},
		{"malformed", `{"staffCode":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestBindAndValidate_FieldNames(t *testing.T) {
	router := newTestRouter()
	router.POST("/bind", WrapHandler(func(c *gin.Context) error {
		var body scanBody
		if appErr := BindAndValidate(c, &body); appErr != nil {
			return appErr
		}
		return nil
	}))

	req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(`{"staffCode":"?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Details, "staffCode")
}

func TestContentType(t *testing.T) {
	router := newTestRouter()
	router.POST("/any", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/any", strings.NewReader("payload"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestNoRouteAndRecovery(t *testing.T) {
	router := newTestRouter()
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ROUTE_NOT_FOUND")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReadinessCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ready", ReadinessCheck("svc", map[string]func() error{
		"mongodb": func() error { return nil },
		"redis":   func() error { return io.EOF },
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	config := DefaultConfig("verification-service", slog.New(slog.NewTextHandler(io.Discard, nil)))
	config.AllowOrigins = []string{"http://scanner.local"}
	Setup(router, config)
	router.POST("/api/v1/plans/:planId/scan", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plans/1001/scan", nil)
	req.Header.Set("Origin", "http://scanner.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://scanner.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/plans/1001/scan", nil)
	req.Header.Set("Origin", "http://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsMiddleware_LabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New(metrics.DefaultConfig("verification-service"))
	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/plans/:planId", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/api/v1/plans/1001", "/api/v1/plans/1002", "/old/scanner/url"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("verification-service", "GET", "/api/v1/plans/:planId", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("verification-service", "GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("verification-service", "GET", "/health", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
}
