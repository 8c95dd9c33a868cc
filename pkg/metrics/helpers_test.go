package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusHandler_ServesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", prometheusHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	// the default registry always carries the go runtime collectors
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestComputeApproximateRequestSize(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/payments", strings.NewReader(`{"order_id":"order-1"}`))
	req.Header.Set("Content-Type", "application/json")

	size := computeApproximateRequestSize(req)

	minimum := len(req.Method) + len(req.URL.Path) + len(req.Proto) + len(req.Host) + int(req.ContentLength)
	assert.GreaterOrEqual(t, size, minimum)

	req.Header.Set("Authorization", "Bearer token")
	assert.Greater(t, computeApproximateRequestSize(req), size)
}

func TestMillisecondsSince(t *testing.T) {
	start := time.Now().Add(-250 * time.Millisecond)
	elapsed := MillisecondsSince(start)
	assert.GreaterOrEqual(t, elapsed, 250.0)
	assert.Less(t, elapsed, 5000.0)
}
