package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newLoggedRouter() (*gin.Engine, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})
	router.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})
	return router, logs
}

func TestRequestLogger_AssignsID(t *testing.T) {
	router, logs := newLoggedRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	id := w.Header().Get(RequestIDHeader)
	if id == "" {
		t.Fatal("expected a request id header")
	}
	if w.Body.String() != id {
		t.Errorf("handler saw id %q, header has %q", w.Body.String(), id)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != id {
		t.Errorf("expected logged request_id %q, got %v", id, fields["request_id"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("expected logged status 200, got %v", fields["status"])
	}
}

func TestRequestLogger_KeepsClientID(t *testing.T) {
	router, _ := newLoggedRouter()

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected client id to be echoed, got %q", got)
	}
}

func TestRequestLogger_ServerErrorsLogAtErrorLevel(t *testing.T) {
	router, logs := newLoggedRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/fail", nil))

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zap.ErrorLevel {
		t.Errorf("expected a single error-level entry, got %+v", entries)
	}
}
