package api

import (
	"errors"
	"net/http"

	"faas/internal/invoker"
	"faas/internal/registry"

	"github.com/gin-gonic/gin"
)

// InvokeHandler is the invocation quarter of spec.md §6's HTTP surface:
// `POST /invoke/{route}` and `POST /functions/{id}/execute` both funnel into
// the same Invoker core.
type InvokeHandler struct {
	invoker *invoker.Invoker
}

func NewInvokeHandler(inv *invoker.Invoker) *InvokeHandler {
	return &InvokeHandler{invoker: inv}
}

func (h *InvokeHandler) ByRoute(c *gin.Context) {
	route := c.Param("route")

	var req InvokeRequest
	// an empty body is a valid invocation with no payload
	_ = c.ShouldBindJSON(&req)

	result, err := h.invoker.InvokeByRoute(c.Request.Context(), route, req.Payload)
	h.respond(c, result, err)
}

func (h *InvokeHandler) ByID(c *gin.Context) {
	id, err := parseFunctionID(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var req InvokeRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.invoker.InvokeByID(c.Request.Context(), id, req.Payload)
	h.respond(c, result, err)
}

func (h *InvokeHandler) respond(c *gin.Context, result invoker.Result, err error) {
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, err)
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(result.StatusCode, InvokeResponse{Output: result.Output, Error: result.Error})
}
