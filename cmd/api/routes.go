package main

import (
	"callqa/internal/auth"
	"callqa/internal/httpapi"
	"callqa/internal/rbac"
	"callqa/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
// A nil auth manager leaves /v1 open.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, am *auth.Manager) {
	// public
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Routes registered before the token middleware stay public.
	v1 := r.Group("/v1")
	v1.GET("/health", h.DependencyHealth)

	roles := func(allowed ...string) gin.HandlerFunc {
		if am == nil {
			return rbac.Passthrough()
		}
		return rbac.RequireAnyRole(allowed...)
	}

	if am != nil {
		v1.POST("/auth/refresh", auth.RefreshHandler(am))
		v1.Use(auth.RequireAccessToken(am))
	}

	v1.POST("/uploads", roles(rbac.Uploaders...), h.Upload)

	callsGroup := v1.Group("/calls")
	callsGroup.Use(roles(rbac.CallReaders...))
	{
		callsGroup.GET("", h.ListCalls)
		callsGroup.GET("/:callId", h.GetCall)
		callsGroup.GET("/:callId/events", h.CallEvents)
		callsGroup.DELETE("/:callId", roles(rbac.RoleAdmin), h.DeleteCall)
	}

	an := v1.Group("/analytics")
	an.Use(roles(rbac.AnalyticsReaders...))
	{
		an.GET("/metrics/overview", h.Overview)
		an.GET("/agents/leaderboard", h.Leaderboard)
		an.GET("/agents/leaderboard.xlsx", h.LeaderboardXLSX)
		an.GET("/trends/scores", h.Trends)
		an.GET("/distribution/scores", h.Distribution)
	}
	v1.GET("/metrics", roles(rbac.AnalyticsReaders...), h.WindowMetrics)
}
