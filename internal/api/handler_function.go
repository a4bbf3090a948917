package api

import (
	"net/http"
	"strconv"

	"faas/internal/registry"

	"github.com/gin-gonic/gin"
)

// FunctionHandler implements the CRUD quarter of spec.md §6's HTTP surface,
// backed entirely by the registry bridge (persist + handler file + pool
// maintenance, all in one call).
type FunctionHandler struct {
	bridge *registry.Bridge
}

func NewFunctionHandler(bridge *registry.Bridge) *FunctionHandler {
	return &FunctionHandler{bridge: bridge}
}

func (h *FunctionHandler) Create(c *gin.Context) {
	var req CreateFunctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	fn := &registry.Function{
		Name:           req.Name,
		Route:          req.Route,
		Language:       req.Language,
		TimeoutSeconds: req.TimeoutSeconds,
		ImageName:      req.ImageName,
		Code:           req.Code,
	}

	created, err := h.bridge.CreateFunction(c.Request.Context(), fn)
	if err != nil {
		abortWithError(c, mapRegistryError(err), err)
		return
	}

	c.JSON(http.StatusOK, toFunctionResponse(created))
}

func (h *FunctionHandler) Get(c *gin.Context) {
	id, err := parseFunctionID(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	fn, err := h.bridge.GetByID(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, mapRegistryError(err), err)
		return
	}

	c.JSON(http.StatusOK, toFunctionResponse(fn))
}

func (h *FunctionHandler) List(c *gin.Context) {
	fns, err := h.bridge.List(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	resp := FunctionListResponse{Functions: make([]FunctionResponse, 0, len(fns))}
	for _, fn := range fns {
		resp.Functions = append(resp.Functions, toFunctionResponse(fn))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FunctionHandler) Update(c *gin.Context) {
	id, err := parseFunctionID(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var req UpdateFunctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	fn := &registry.Function{
		ID:             id,
		Name:           req.Name,
		Route:          req.Route,
		Language:       req.Language,
		TimeoutSeconds: req.TimeoutSeconds,
		ImageName:      req.ImageName,
		Code:           req.Code,
	}

	updated, err := h.bridge.UpdateFunction(c.Request.Context(), fn)
	if err != nil {
		abortWithError(c, mapRegistryError(err), err)
		return
	}

	c.JSON(http.StatusOK, toFunctionResponse(updated))
}

func (h *FunctionHandler) Delete(c *gin.Context) {
	id, err := parseFunctionID(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.bridge.DeleteFunction(c.Request.Context(), id); err != nil {
		abortWithError(c, mapRegistryError(err), err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseFunctionID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func toFunctionResponse(fn *registry.Function) FunctionResponse {
	return FunctionResponse{
		ID:             fn.ID,
		Name:           fn.Name,
		Route:          fn.Route,
		Language:       fn.Language,
		TimeoutSeconds: fn.TimeoutSeconds,
		ImageName:      fn.ImageName,
		Code:           fn.Code,
		CreatedAt:      formatTime(fn.CreatedAt),
	}
}
