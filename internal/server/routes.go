// Package server configures the HTTP server and routes.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/config"
	"github.com/greut/aio-iiif/internal/handler"
	"github.com/greut/aio-iiif/internal/metrics"
	"github.com/greut/aio-iiif/internal/middleware"
	"github.com/greut/aio-iiif/internal/service"
	"github.com/greut/aio-iiif/internal/storage"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Service *service.ImageService
	// Ledger is optional; admin routes exist only when it is set.
	Ledger  storage.RequestRepository
	Metrics *metrics.Metrics
	// Engine names the backend for /healthz.
	Engine string
	// Waiting reports the engine queue depth.
	Waiting func() int
}

// RegisterRoutes sets up all HTTP routes on the Gin engine.
//
// IIIF identifiers are URLs and contain slashes, which gin's router cannot
// capture, so the IIIF handler is the NoRoute fallback behind the fixed
// routes.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, deps Deps, logger *zap.Logger) {
	healthHandler := handler.NewHealthHandler(deps.Engine)
	indexHandler := handler.NewIndexHandler(cfg.Server.BaseURL)
	iiifHandler := handler.NewIIIFHandler(deps.Service, deps.Ledger, deps.Metrics, cfg.Server.BaseURL, logger)

	r.SetHTMLTemplate(handler.Templates())

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	r.GET("/", indexHandler.Index)

	if deps.Ledger != nil {
		adminHandler := handler.NewAdminHandler(deps.Ledger, deps.Waiting, logger)
		admin := r.Group("/admin")
		{
			admin.GET("/stats", adminHandler.Stats)
			admin.GET("/requests", adminHandler.Recent)
		}
	}

	r.NoRoute(
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		iiifHandler.Serve,
	)
}
