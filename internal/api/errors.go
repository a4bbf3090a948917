package api

import (
	"errors"
	"net/http"

	"faas/internal/registry"

	"github.com/gin-gonic/gin"
)

func abortWithError(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

// mapRegistryError translates a registry error into the HTTP status spec.md
// §7 assigns it: RegistryNotFound -> 404, RegistryConflict -> 400.
func mapRegistryError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrConflict):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
