package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greut/aio-iiif/internal/iiif"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded HTML templates for gin's SetHTMLTemplate.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// IndexHandler renders the landing page.
type IndexHandler struct {
	baseURL string
}

// NewIndexHandler creates a new IndexHandler. An empty baseURL is derived
// from each request.
func NewIndexHandler(baseURL string) *IndexHandler {
	return &IndexHandler{baseURL: baseURL}
}

// Index renders templates/index.html.
// Route: GET /
func (h *IndexHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"BaseURL":   baseURLFor(c, h.baseURL),
		"Formats":   iiif.OutputFormats,
		"Qualities": []string{iiif.QualityDefault, iiif.QualityColor, iiif.QualityGray, iiif.QualityBitonal},
	})
}
