package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gallery_planner/internal/metrics"

	"github.com/labstack/echo/v4"
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

func TestPrometheusMetrics(t *testing.T) {
	e := echo.New()
	e.Use(PrometheusMetrics)
	e.GET("/galleries/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/broken", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "nope")
	})

	okCounter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/galleries/:id", "204")
	teapot := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/broken", "418")
	beforeOK := counterValue(t, okCounter)
	beforeTeapot := counterValue(t, teapot)

	for _, path := range []string{"/galleries/1", "/galleries/2", "/broken"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, beforeOK+2, counterValue(t, okCounter))
	assert.Equal(t, beforeTeapot+1, counterValue(t, teapot))
}
