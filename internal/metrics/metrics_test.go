package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("image", http.StatusOK, 10*time.Millisecond)
	m.RecordRequest("image", http.StatusOK, 20*time.Millisecond)
	m.RecordRequest("info", http.StatusBadRequest, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("image", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("info", "400")))
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.RecordFetch(2048)

	assert.Equal(t, 1, testutil.CollectAndCount(a.FetchBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(b.FetchBytes))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordEngine("apply", 5*time.Millisecond)
	m.WatchQueue(func() int { return 3 })

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, `iiif_engine_duration_seconds_count{operation="apply"} 1`), body)
	assert.Contains(t, body, "iiif_engine_queue_depth 3")
	assert.Contains(t, body, "go_goroutines")
}
