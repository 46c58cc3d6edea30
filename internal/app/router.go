package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bibxml/internal/auth"
	"bibxml/internal/events"
	"bibxml/internal/management"
	"bibxml/internal/metrics"
	"bibxml/internal/refs"
	"bibxml/internal/xml2rfc"
)

// Router builds the full HTTP surface.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(a.Logger), a.Metrics.Middleware())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := a.Hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := a.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": stats.WSClients,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"ws_clients": stats.WSClients,
		})
	})

	router.GET("/metrics", auth.BasicAuthMiddleware(a.Creds), gin.WrapH(metrics.Handler(a.Registry)))

	auth.NewHandler(a.Creds, a.Tokens).RegisterRoutes(router.Group("/auth"))

	api := router.Group("/api/v1")
	refs.NewHandler(a.Refs, a.Citations, a.DOI, a.Logger).RegisterRoutes(api)

	mgmt := api.Group("/management/xml2rfc")
	mgmt.Use(auth.BearerMiddleware(a.Tokens, auth.ScopeManage))
	management.NewHandler(a.Manual, a.Hub, a.Logger).RegisterRoutes(mgmt)
	mgmt.GET("/events", events.WSHandler(a.Hub))

	xml2rfc.NewHandler(a.Engine, a.Config.Xml2rfc.PathPrefix, a.Logger).RegisterRoutes(router)

	return router
}
