package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/model"
	"github.com/greut/aio-iiif/internal/storage"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// AdminHandler exposes the request ledger.
type AdminHandler struct {
	ledger  storage.RequestRepository
	waiting func() int
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. waiting reports the engine
// queue depth.
func NewAdminHandler(ledger storage.RequestRepository, waiting func() int, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:  ledger,
		waiting: waiting,
		logger:  logger,
	}
}

// Stats returns request counts per outcome.
// Route: GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.ledger.Count(ctx)
	if err != nil {
		h.logger.Error("counting requests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	outcomes := make(map[model.Outcome]int64, len(model.AllOutcomes))
	for _, o := range model.AllOutcomes {
		n, err := h.ledger.CountByOutcome(ctx, o)
		if err != nil {
			h.logger.Error("counting requests by outcome", zap.String("outcome", string(o)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		outcomes[o] = n
	}

	stats := gin.H{
		"total":    total,
		"outcomes": outcomes,
	}
	if h.waiting != nil {
		stats["engine_queue"] = h.waiting()
	}
	c.JSON(http.StatusOK, stats)
}

// Recent lists the latest requests, newest first.
// Route: GET /admin/requests?limit=50
func (h *AdminHandler) Recent(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("listing recent requests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if records == nil {
		records = []model.RequestRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"requests": records})
}
