package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Increment("bibxml/reference.RFC1.xml", "success")
	m.Increment("bibxml/reference.RFC1.xml", "not_found")
	m.Increment("bibxml/reference.RFC1.xml", "not_found")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BibitemHits.WithLabelValues("bibxml/reference.RFC1.xml", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BibitemHits.WithLabelValues("bibxml/reference.RFC1.xml", "not_found")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.BibitemHits))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(Handler(reg)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `bibxml_http_request_duration_seconds_count{method="GET",route="/ping",status="200"} 1`)
}
