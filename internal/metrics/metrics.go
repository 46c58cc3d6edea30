// Package metrics holds the service's Prometheus collectors.
//
// Collectors are registered on the Registerer passed to New so tests can
// use an isolated registry. All operations are safe for concurrent use.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bibxml"

type Metrics struct {
	// BibitemHits counts compat path resolutions.
	// Labels: subpath, outcome (success, success_fallback, not_found)
	BibitemHits *prometheus.CounterVec

	// RequestDuration measures HTTP handling time.
	// Labels: method, route, status
	RequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// unprefixed: dashboards predate the namespace
		BibitemHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xml2rfc_api_bibitem_hits",
				Help: "Number of xml2rfc compat path resolutions by subpath and outcome",
			},
			[]string{"subpath", "outcome"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Increment records one bibitem hit.
func (m *Metrics) Increment(subpath, outcome string) {
	m.BibitemHits.WithLabelValues(subpath, outcome).Inc()
}

// Middleware observes request duration by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
