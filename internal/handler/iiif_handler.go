package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/engine"
	"github.com/greut/aio-iiif/internal/fetch"
	"github.com/greut/aio-iiif/internal/iiif"
	"github.com/greut/aio-iiif/internal/metrics"
	"github.com/greut/aio-iiif/internal/middleware"
	"github.com/greut/aio-iiif/internal/model"
	"github.com/greut/aio-iiif/internal/service"
	"github.com/greut/aio-iiif/internal/storage"
)

// statusClientClosedRequest is nginx's code for a client that went away
// before the response was ready.
const statusClientClosedRequest = 499

const ledgerTimeout = 2 * time.Second

// IIIFHandler answers image and info.json requests. The identifier is a URL
// and may contain slashes, so the handler is mounted as the router's
// NoRoute fallback and parses the raw path itself.
type IIIFHandler struct {
	service *service.ImageService
	ledger  storage.RequestRepository
	metrics *metrics.Metrics
	baseURL string
	logger  *zap.Logger
}

// NewIIIFHandler creates a new IIIFHandler. ledger may be nil, and an empty
// baseURL is derived from each request.
func NewIIIFHandler(svc *service.ImageService, ledger storage.RequestRepository, m *metrics.Metrics, baseURL string, logger *zap.Logger) *IIIFHandler {
	return &IIIFHandler{
		service: svc,
		ledger:  ledger,
		metrics: m,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Serve handles GET and HEAD for
//
//	/{identifier}/{region}/{size}/{rotation}/{quality}.{format}
//	/{identifier}/info.json
//
// Errors are answered with an empty body.
func (h *IIIFHandler) Serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Header("Allow", "GET, HEAD")
		c.AbortWithStatus(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	path := c.Request.URL.Path

	req, err := iiif.ParseRequest(path)
	if err != nil {
		h.fail(c, start, "unknown", "", err)
		return
	}

	kind := req.Kind.String()
	switch req.Kind {
	case iiif.KindInfo:
		info, err := h.service.Info(c.Request.Context(), req, baseURLFor(c, h.baseURL))
		if err != nil {
			h.fail(c, start, kind, req.Identifier, err)
			return
		}
		c.Header("Link", `<`+iiif.ComplianceLevel+`>;rel="profile"`)
		c.JSON(http.StatusOK, info)
		h.done(c, start, kind, req.Identifier, int64(c.Writer.Size()))

	default:
		res, err := h.service.Image(c.Request.Context(), req)
		if err != nil {
			h.fail(c, start, kind, req.Identifier, err)
			return
		}
		c.Header("Link", `<`+iiif.ComplianceLevel+`>;rel="profile"`)
		c.Data(http.StatusOK, res.ContentType, res.Data)
		h.done(c, start, kind, req.Identifier, int64(len(res.Data)))
	}
}

func (h *IIIFHandler) done(c *gin.Context, start time.Time, kind, identifier string, n int64) {
	elapsed := time.Since(start)
	h.metrics.RecordRequest(kind, http.StatusOK, elapsed)
	h.record(c, &model.RequestRecord{
		Kind:       kind,
		Identifier: identifier,
		Status:     http.StatusOK,
		Outcome:    model.OutcomeOK,
		Bytes:      n,
		DurationMs: elapsed.Milliseconds(),
	})
}

func (h *IIIFHandler) fail(c *gin.Context, start time.Time, kind, identifier string, err error) {
	status := statusFor(err)
	elapsed := time.Since(start)

	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("iiif request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	c.AbortWithStatus(status)

	h.metrics.RecordRequest(kind, status, elapsed)
	msg := err.Error()
	h.record(c, &model.RequestRecord{
		Kind:       kind,
		Identifier: identifier,
		Status:     status,
		Outcome:    outcomeFor(status),
		Error:      &msg,
		DurationMs: elapsed.Milliseconds(),
	})
}

// record writes to the ledger even when the client has already gone.
func (h *IIIFHandler) record(c *gin.Context, rec *model.RequestRecord) {
	if h.ledger == nil {
		return
	}
	rec.RequestID = middleware.RequestID(c)
	rec.Path = c.Request.URL.Path

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), ledgerTimeout)
	defer cancel()
	if err := h.ledger.Record(ctx, rec); err != nil {
		h.logger.Error("recording request", zap.Error(err))
	}
}

// statusFor translates an orchestration error into an HTTP status.
func statusFor(err error) int {
	var fetchErr *fetch.Error

	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, iiif.ErrMalformedRequest), errors.Is(err, iiif.ErrUnsupported):
		return http.StatusBadRequest
	case errors.As(err, &fetchErr):
		if fetchErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, engine.ErrEngine):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func outcomeFor(status int) model.Outcome {
	switch status {
	case http.StatusOK:
		return model.OutcomeOK
	case http.StatusNotFound, http.StatusBadGateway, http.StatusGatewayTimeout:
		return model.OutcomeUpstreamError
	case http.StatusInternalServerError:
		return model.OutcomeEngineError
	}
	return model.OutcomeClientError
}

// baseURLFor returns the configured base URL or, when there is none, the
// scheme and host the request came in on.
func baseURLFor(c *gin.Context, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + c.Request.Host
}
