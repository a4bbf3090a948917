package api

import (
	"net/http"
	"strconv"

	"faas/internal/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsHandler is the aggregation quarter of spec.md §6's HTTP surface:
// per-function listing, summary (scoped or global), and time-series.
type MetricsHandler struct {
	store *metrics.Store
}

func NewMetricsHandler(store *metrics.Store) *MetricsHandler {
	return &MetricsHandler{store: store}
}

func (h *MetricsHandler) ListByFunction(c *gin.Context) {
	id, err := parseFunctionID(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.store.ListByFunction(c.Request.Context(), id, limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if len(records) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "no metrics found for function", Code: http.StatusNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invocations": records})
}

func (h *MetricsHandler) FunctionSummary(c *gin.Context) {
	id, err := parseFunctionID(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	days, _ := strconv.Atoi(c.Query("days"))

	summary, err := h.store.Summary(c.Request.Context(), &id, days)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *MetricsHandler) GlobalSummary(c *gin.Context) {
	days, _ := strconv.Atoi(c.Query("days"))

	summary, err := h.store.Summary(c.Request.Context(), nil, days)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *MetricsHandler) TimeSeries(c *gin.Context) {
	id, err := parseFunctionID(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	period := c.DefaultQuery("period", "daily")

	points, err := h.store.TimeSeries(c.Request.Context(), id, period)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"points": points})
}
