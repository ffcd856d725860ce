package iiif

import "strings"

const (
	InfoContext     = "http://iiif.io/api/image/2/context.json"
	InfoProtocol    = "http://iiif.io/api/image"
	ComplianceLevel = "http://iiif.io/api/image/2/level2.json"
)

// Profile is the capability block of an info document.
type Profile struct {
	Formats   []string `json:"formats"`
	Qualities []string `json:"qualities"`
	Supports  []string `json:"supports"`
}

// Info is the info.json document of one image.
type Info struct {
	Context  string        `json:"@context"`
	ID       string        `json:"@id"`
	Protocol string        `json:"protocol"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Profile  []interface{} `json:"profile"`
}

// The capability manifest is declared by hand. Update it whenever the
// parser or resolvers learn or drop a feature.
var (
	advertisedQualities = []string{QualityDefault, QualityColor, QualityGray, QualityBitonal}
	advertisedFeatures  = []string{
		"regionByPx",
		"regionByPct",
		"regionSquare",
		"rotationBy90s",
		"mirroring",
		"sizeByW",
		"sizeByH",
		"sizeByPct",
		"sizeByWh",
		"sizeByConfinedWh",
		"sizeByDistortedWh",
	}
)

// Describe builds the info document for an image of the given dimensions.
// The @id is the service base URL followed by the identifier.
func Describe(identifier, baseURL string, dims Dimensions) *Info {
	formats := make([]string, len(OutputFormats))
	for i, f := range OutputFormats {
		formats[i] = string(f)
	}

	return &Info{
		Context:  InfoContext,
		ID:       strings.TrimRight(baseURL, "/") + "/" + identifier,
		Protocol: InfoProtocol,
		Width:    dims.Width,
		Height:   dims.Height,
		Profile: []interface{}{
			ComplianceLevel,
			Profile{
				Formats:   formats,
				Qualities: append([]string(nil), advertisedQualities...),
				Supports:  append([]string(nil), advertisedFeatures...),
			},
		},
	}
}
