package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"gallery_planner/internal/metrics"

	"github.com/labstack/echo/v4"
)

const metricsPath = "/metrics"

// PrometheusMetrics считает запросы по шаблону маршрута, а не по сырому URI,
// чтобы UUID в путях не раздували число серий.
func PrometheusMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Path() == metricsPath {
			return next(c)
		}

		start := time.Now()
		err := next(c)
		duration := time.Since(start).Seconds()

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request().Method,
			route,
			strconv.Itoa(status(c, err)),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request().Method,
			route,
		).Observe(duration)

		return err
	}
}

// status учитывает ошибку, которую echo ещё не записал в ответ
func status(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
