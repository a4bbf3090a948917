package api

import (
	"net/http"
	"strconv"
	"time"

	"faas/internal/invoker"
	"faas/internal/metrics"
	"faas/internal/orchestrator"
	"faas/internal/registry"

	"github.com/gin-gonic/gin"
)

// NewRouter wires spec.md §6's HTTP surface under /api/v1, matching the
// teacher's own versioned grouping (internal/api/router.go's `v1 :=
// r.Group("/api/v1")`): function CRUD, invoke-by-route, invoke-by-id, and
// the four metrics endpoints, plus a pool snapshot endpoint for diagnostics
// (spec §4.1 `snapshot()`).
func NewRouter(bridge *registry.Bridge, inv *invoker.Invoker, metricsStore *metrics.Store, pool orchestrator.IPool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: formatTime(time.Now()),
		})
	})

	functionHandler := NewFunctionHandler(bridge)
	invokeHandler := NewInvokeHandler(inv)
	metricsHandler := NewMetricsHandler(metricsStore)

	v1 := r.Group("/api/v1")

	functions := v1.Group("/functions")
	{
		functions.POST("/", functionHandler.Create)
		functions.GET("/", functionHandler.List)
		functions.GET("/:id", functionHandler.Get)
		functions.PUT("/:id", functionHandler.Update)
		functions.DELETE("/:id", functionHandler.Delete)
		functions.POST("/:id/execute", invokeHandler.ByID)
	}

	v1.POST("/invoke/*route", invokeHandler.ByRoute)

	metricsGroup := v1.Group("/metrics")
	{
		metricsGroup.GET("/function/:id", metricsHandler.ListByFunction)
		metricsGroup.GET("/function/:id/summary", metricsHandler.FunctionSummary)
		metricsGroup.GET("/function/:id/timeseries", metricsHandler.TimeSeries)
		metricsGroup.GET("/summary", metricsHandler.GlobalSummary)
	}

	v1.GET("/pool/snapshot", func(c *gin.Context) {
		snapshot := pool.Snapshot()
		out := make(map[string][]string, len(snapshot))
		for functionID, containerIDs := range snapshot {
			out[strconv.FormatInt(functionID, 10)] = containerIDs
		}
		c.JSON(http.StatusOK, PoolSnapshotResponse{Pool: out})
	})

	return r
}
