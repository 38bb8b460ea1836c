package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveWrite(t *testing.T) {
	before := counterValue(t, ProgressWrites.WithLabelValues("track_visit", "error"))
	ObserveWrite("track_visit", errors.New("boom"))
	ObserveWrite("track_visit", nil)
	assert.Equal(t, before+1, counterValue(t, ProgressWrites.WithLabelValues("track_visit", "error")))
}

func TestMetricsMiddlewareLabelsUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", PrometheusHandler())

	before := counterValue(t, RequestCounter.WithLabelValues("GET", "unmatched", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, before+1, counterValue(t, RequestCounter.WithLabelValues("GET", "unmatched", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{endpoint="/api/health",method="GET",status="200"}`)
}
