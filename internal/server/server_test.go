package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/config"
	"github.com/greut/aio-iiif/internal/engine"
	"github.com/greut/aio-iiif/internal/fetch"
	"github.com/greut/aio-iiif/internal/iiif"
	"github.com/greut/aio-iiif/internal/metrics"
	"github.com/greut/aio-iiif/internal/service"
	"github.com/greut/aio-iiif/internal/storage"
)

const (
	cat   = "http://example.org/cat.jpg"
	split = "http://example.org/split.png"
)

// maxTestPixels is the engine limit of the test server.
const maxTestPixels = 10_000_000

func init() {
	gin.SetMode(gin.TestMode)
}

// createTestPNG generates a solid-color PNG image in memory.
func createTestPNG(width, height int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err) // only in tests
	}
	return buf.Bytes()
}

// createSplitPNG is red on the left half and blue on the right half.
func createSplitPNG(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xc000 && g < 0x4000 && b < 0x4000
}

func isBlue(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return b > 0xc000 && r < 0x4000 && g < 0x4000
}

// spyEngine counts calls reaching the real engine.
type spyEngine struct {
	engine.Engine
	probes  atomic.Int32
	applies atomic.Int32
}

func (s *spyEngine) Probe(data []byte) (iiif.Dimensions, error) {
	s.probes.Add(1)
	return s.Engine.Probe(data)
}

func (s *spyEngine) Apply(data []byte, plan *iiif.TransformPlan) ([]byte, error) {
	s.applies.Add(1)
	return s.Engine.Apply(data, plan)
}

type testServer struct {
	router *gin.Engine
	spy    *spyEngine
	ledger storage.RequestRepository
	mock   *httpmock.MockTransport
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Fetch:     config.FetchConfig{Timeout: 5 * time.Second, MaxBytes: 10 << 20, UserAgent: "aio-iiif-test"},
		Engine:    config.EngineConfig{Backend: "native", Workers: 2},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{},
		Log:       config.LogConfig{Level: "info"},
	}

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", cat,
		httpmock.NewBytesResponder(200, createTestPNG(400, 300, color.RGBA{R: 200, G: 100, B: 50, A: 255})))
	mock.RegisterResponder("GET", split,
		httpmock.NewBytesResponder(200, createSplitPNG(40, 20)))
	mock.RegisterResponder("GET", "http://example.org/missing.jpg",
		httpmock.NewStringResponder(404, "not found"))
	mock.RegisterResponder("GET", "http://example.org/broken.jpg",
		httpmock.NewStringResponder(500, "oops"))
	mock.RegisterResponder("GET", "http://example.org/page.html",
		httpmock.NewStringResponder(200, "<html></html>"))

	logger := zap.NewNop()
	fetcher := fetch.NewHTTPFetcher(&http.Client{Transport: mock}, cfg.Fetch, logger)

	spy := &spyEngine{Engine: engine.NewNativeEngine(maxTestPixels)}
	pool := engine.NewPool(spy, cfg.Engine.Workers, logger)
	t.Cleanup(pool.Stop)

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ledger := storage.NewRequestRepository(db)

	m := metrics.New()
	svc := service.NewImageService(fetcher, pool, m, logger)

	srv := New(cfg, Deps{
		Service: svc,
		Ledger:  ledger,
		Metrics: m,
		Engine:  spy.Name(),
		Waiting: pool.Waiting,
	}, logger)

	return &testServer{router: srv.Router(), spy: spy, ledger: ledger, mock: mock}
}

func (ts *testServer) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Host = "iiif.example.net"
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestImage_HalfSizeJPEG(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/"+cat+"/full/pct:50/0/default.jpg")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Link"), iiif.ComplianceLevel)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestImage_SquareMaxMirroredGray(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/"+cat+"/square/max/!90/gray.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, format, err := image.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	r, g, b, _ := img.At(150, 150).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestImage_MirrorAndRotateDirection(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name          string
		params        string
		width, height int
		topRed        bool
	}{
		{"clockwise 90", "full/full/90/default.png", 20, 40, true},
		{"mirrored then 90", "full/full/!90/default.png", 20, 40, false},
		{"270", "full/full/270/default.png", 20, 40, false},
		{"square mirrored then 90", "square/max/!90/default.png", 20, 20, false},
		{"square 90", "square/max/90/default.png", 20, 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do("GET", "/"+split+"/"+tt.params)
			require.Equal(t, http.StatusOK, w.Code)

			img, _, err := image.Decode(bytes.NewReader(w.Body.Bytes()))
			require.NoError(t, err)
			require.Equal(t, tt.width, img.Bounds().Dx())
			require.Equal(t, tt.height, img.Bounds().Dy())

			top := img.At(tt.width/2, 2)
			bottom := img.At(tt.width/2, tt.height-3)
			if tt.topRed {
				assert.True(t, isRed(top), "top should be red")
				assert.True(t, isBlue(bottom), "bottom should be blue")
			} else {
				assert.True(t, isBlue(top), "top should be blue")
				assert.True(t, isRed(bottom), "bottom should be red")
			}
		})
	}
}

func TestImage_MirrorWithoutRotation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/"+split+"/full/full/!0/default.png")
	require.Equal(t, http.StatusOK, w.Code)

	img, _, err := image.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.True(t, isBlue(img.At(2, 10)), "left should be blue")
	assert.True(t, isRed(img.At(37, 10)), "right should be red")
}

func TestImage_OversizedIsBadRequest(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"huge pixel region offset", "/" + cat + "/9223372036854775807,0,10,10/full/0/default.jpg"},
		{"huge percent region offset", "/" + cat + "/pct:100000000000000000000000000000000000000,0,10,10/full/0/default.jpg"},
		{"enlarged past the pixel limit", "/" + cat + "/full/10000,/0/default.jpg"},
		{"enlarged past the largest side", "/" + cat + "/full/100000,/0/default.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do("GET", tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, w.Body.Bytes())
		})
	}
}

func TestImage_MalformedIsBadRequest(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"bad region", "/" + cat + "/nope/full/0/default.jpg"},
		{"bad size", "/" + cat + "/full/huge/0/default.jpg"},
		{"bad rotation", "/" + cat + "/full/full/45/default.jpg"},
		{"bad quality", "/" + cat + "/full/full/0/sepia.jpg"},
		{"pdf", "/" + cat + "/full/full/0/default.pdf"},
		{"not a url", "/cat.jpg/full/full/0/default.jpg"},
		{"favicon", "/favicon.ico"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do("GET", tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, w.Body.Bytes())
		})
	}

	assert.Zero(t, ts.mock.GetTotalCallCount(), "malformed requests must not fetch")
}

func TestImage_UpstreamMissing(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/http://example.org/missing.jpg/full/full/0/default.jpg")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.Bytes())
	assert.Zero(t, ts.spy.probes.Load())
	assert.Zero(t, ts.spy.applies.Load())
}

func TestImage_UpstreamFailure(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/http://example.org/broken.jpg/full/full/0/default.jpg")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestImage_UndecodableSource(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/http://example.org/page.html/full/full/0/default.jpg")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestImage_HeadAndMethods(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("HEAD", "/"+cat+"/full/full/0/default.png")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = ts.do("POST", "/"+cat+"/full/full/0/default.png")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
}

func TestImage_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/"+cat+"/info.json", nil)
	req.Header.Set("Origin", "https://viewer.example.org")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestInfo_RoundTrip(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/"+cat+"/info.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var info struct {
		Context  string        `json:"@context"`
		ID       string        `json:"@id"`
		Protocol string        `json:"protocol"`
		Width    int           `json:"width"`
		Height   int           `json:"height"`
		Profile  []interface{} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))

	assert.Equal(t, iiif.InfoContext, info.Context)
	assert.Equal(t, "http://iiif.example.net/"+cat, info.ID)
	assert.Equal(t, iiif.InfoProtocol, info.Protocol)
	assert.Equal(t, 400, info.Width)
	assert.Equal(t, 300, info.Height)
	require.Len(t, info.Profile, 2)
	assert.Equal(t, iiif.ComplianceLevel, info.Profile[0])

	// The full image has the dimensions info.json announced.
	w = ts.do("GET", "/"+cat+"/full/full/0/default.png")
	require.Equal(t, http.StatusOK, w.Code)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, info.Width, cfg.Width)
	assert.Equal(t, info.Height, cfg.Height)
}

func TestInfo_ForwardedProto(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/"+cat+"/info.json", nil)
	req.Host = "iiif.example.net"
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var info iiif.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "https://iiif.example.net/"+cat, info.ID)
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "http://iiif.example.net/{identifier}/info.json")
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "native", body["engine"])
}

func TestMetricsAndLedger(t *testing.T) {
	ts := newTestServer(t)

	ts.do("GET", "/"+cat+"/full/pct:50/0/default.jpg")
	ts.do("GET", "/"+cat+"/nope/full/0/default.jpg")
	ts.do("GET", "/http://example.org/missing.jpg/info.json")

	w := ts.do("GET", "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `iiif_requests_total{kind="image",status="200"} 1`)
	assert.Contains(t, w.Body.String(), `iiif_requests_total{kind="unknown",status="400"} 1`)
	assert.Contains(t, w.Body.String(), `iiif_requests_total{kind="info",status="404"} 1`)

	w = ts.do("GET", "/admin/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		Total    int64            `json:"total"`
		Outcomes map[string]int64 `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Outcomes["ok"])
	assert.Equal(t, int64(1), stats.Outcomes["client_error"])
	assert.Equal(t, int64(1), stats.Outcomes["upstream_error"])

	w = ts.do("GET", "/admin/requests?limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	var recent struct {
		Requests []struct {
			Kind       string `json:"kind"`
			Identifier string `json:"identifier"`
			Status     int    `json:"status"`
			RequestID  string `json:"request_id"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	require.Len(t, recent.Requests, 1)
	assert.Equal(t, "info", recent.Requests[0].Kind)
	assert.Equal(t, "http://example.org/missing.jpg", recent.Requests[0].Identifier)
	assert.Equal(t, http.StatusNotFound, recent.Requests[0].Status)
	assert.NotEmpty(t, recent.Requests[0].RequestID)

	w = ts.do("GET", "/admin/requests?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
