// Package handler contains the HTTP handlers. Each handler is a struct
// holding its dependencies, with gin.HandlerFunc methods.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	engine string
}

// NewHealthHandler creates a new HealthHandler reporting the engine backend.
func NewHealthHandler(engine string) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// Healthz responds with service status.
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "aio-iiif",
		"engine":  h.engine,
	})
}
