package iiif

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const infoDocument = "info.json"

// shape is one structural variant of the request grammar. It returns
// errNoMatch (possibly wrapped with detail) when the path does not have its
// structure, so the next variant can be tried.
type shape func(segments []string) (*Request, error)

// shapes are tried in order; the first structural match wins.
var shapes = []shape{parseImageShape, parseInfoShape}

var errNoMatch = errors.New("no grammar match")

// ParseRequest parses the part of a request path that follows the base
// route, for example
//
//	http://example.org/cat.jpg/full/pct:50/0/default.jpg
//	http://example.org/cat.jpg/info.json
//
// The identifier may contain slashes, so the fixed-shape suffix is anchored
// from the right and everything before it is the identifier.
func ParseRequest(path string) (*Request, error) {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	var firstErr error
	for _, parse := range shapes {
		req, err := parse(segments)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, errNoMatch) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return nil, fmt.Errorf("%w: %q: %v", ErrMalformedRequest, path, firstErr)
}

func parseImageShape(segments []string) (*Request, error) {
	n := len(segments)
	if n < 5 {
		return nil, fmt.Errorf("%w: too few segments", errNoMatch)
	}

	region, err := parseRegion(segments[n-4])
	if err != nil {
		return nil, err
	}
	size, err := parseSize(segments[n-3])
	if err != nil {
		return nil, err
	}
	rotation, err := parseRotation(segments[n-2])
	if err != nil {
		return nil, err
	}
	quality, format, err := parseQualityFormat(segments[n-1])
	if err != nil {
		return nil, err
	}
	identifier, err := parseIdentifier(segments[:n-4])
	if err != nil {
		return nil, err
	}

	// pdf is only rejected once everything else matched, so that a path
	// like ".../info.pdf" stays a plain grammar mismatch.
	if format == FormatPDF {
		return nil, fmt.Errorf("%w: %s output", ErrUnsupported, format)
	}

	return &Request{
		Identifier: identifier,
		Kind:       KindImage,
		Region:     region,
		Size:       size,
		Rotation:   rotation,
		Quality:    quality,
		Format:     format,
	}, nil
}

func parseInfoShape(segments []string) (*Request, error) {
	n := len(segments)
	if n < 2 || segments[n-1] != infoDocument {
		return nil, fmt.Errorf("%w: not an %s path", errNoMatch, infoDocument)
	}

	identifier, err := parseIdentifier(segments[:n-1])
	if err != nil {
		return nil, err
	}

	return &Request{Identifier: identifier, Kind: KindInfo}, nil
}

// parseIdentifier joins the leading segments back together and checks that
// they form an absolute http(s) URL. Proxies and path cleaners tend to
// collapse "http://" into "http:/", which is put back here.
func parseIdentifier(segments []string) (string, error) {
	id := strings.Join(segments, "/")

	for _, scheme := range []string{"http:", "https:"} {
		rest, ok := strings.CutPrefix(id, scheme+"/")
		if !ok {
			continue
		}
		id = scheme + "//" + strings.TrimPrefix(rest, "/")

		u, err := url.Parse(id)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: identifier %q is not a URL", errNoMatch, id)
		}
		return id, nil
	}

	return "", fmt.Errorf("%w: identifier %q is not an http(s) URL", errNoMatch, id)
}

func parseRegion(tok string) (Region, error) {
	switch tok {
	case "full":
		return Region{Kind: RegionFull}, nil
	case "square":
		return Region{Kind: RegionSquare}, nil
	}

	kind := RegionPixel
	body := tok
	if rest, ok := strings.CutPrefix(tok, "pct:"); ok {
		kind = RegionPercent
		body = rest
	}

	parts := strings.Split(body, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("%w: region %q", errNoMatch, tok)
	}

	var values [4]float64
	for i, p := range parts {
		if kind == RegionPixel {
			v, ok := parseUint(p)
			if !ok {
				return Region{}, fmt.Errorf("%w: region %q", errNoMatch, tok)
			}
			values[i] = float64(v)
			continue
		}
		v, ok := parseDecimal(p)
		if !ok {
			return Region{}, fmt.Errorf("%w: region %q", errNoMatch, tok)
		}
		values[i] = v
	}

	return Region{Kind: kind, X: values[0], Y: values[1], W: values[2], H: values[3]}, nil
}

func parseSize(tok string) (Size, error) {
	switch tok {
	case "full":
		return Size{Kind: SizeFull}, nil
	case "max":
		return Size{Kind: SizeMax}, nil
	}

	if rest, ok := strings.CutPrefix(tok, "pct:"); ok {
		pct, ok := parseDecimal(rest)
		if !ok {
			return Size{}, fmt.Errorf("%w: size %q", errNoMatch, tok)
		}
		return Size{Kind: SizePercent, Percent: pct}, nil
	}

	body, confined := strings.CutPrefix(tok, "!")
	ws, hs, ok := strings.Cut(body, ",")
	if !ok {
		return Size{}, fmt.Errorf("%w: size %q", errNoMatch, tok)
	}

	w, wok := parseUint(ws)
	h, hok := parseUint(hs)
	if (ws != "" && !wok) || (hs != "" && !hok) {
		return Size{}, fmt.Errorf("%w: size %q", errNoMatch, tok)
	}

	switch {
	case wok && hok && confined:
		return Size{Kind: SizeConfined, W: w, H: h}, nil
	case wok && hok:
		return Size{Kind: SizeUnconfined, W: w, H: h}, nil
	case confined:
		// !w,h needs both dimensions.
		return Size{}, fmt.Errorf("%w: size %q", errNoMatch, tok)
	case wok:
		return Size{Kind: SizeWidth, W: w}, nil
	case hok:
		return Size{Kind: SizeHeight, H: h}, nil
	}

	return Size{}, fmt.Errorf("%w: size %q", errNoMatch, tok)
}

func parseRotation(tok string) (Rotation, error) {
	body, mirror := strings.CutPrefix(tok, "!")

	switch body {
	case "0", "90", "180", "270":
		degrees, _ := strconv.Atoi(body)
		return Rotation{Degrees: degrees, Mirror: mirror}, nil
	}

	return Rotation{}, fmt.Errorf("%w: rotation %q", errNoMatch, tok)
}

func parseQualityFormat(tok string) (Quality, Format, error) {
	i := strings.LastIndexByte(tok, '.')
	if i < 0 {
		return Quality{}, "", fmt.Errorf("%w: quality.format %q", errNoMatch, tok)
	}

	quality, err := parseQuality(tok[:i])
	if err != nil {
		return Quality{}, "", err
	}

	format := Format(tok[i+1:])
	switch format {
	case FormatJPG, FormatPNG, FormatTIF, FormatGIF, FormatJP2, FormatWebP, FormatPDF:
		return quality, format, nil
	}

	return Quality{}, "", fmt.Errorf("%w: format %q", errNoMatch, format)
}

func parseQuality(tok string) (Quality, error) {
	switch tok {
	case QualityDefault, QualityNative, QualityColor, QualityGray, QualityBitonal:
		return Quality{Name: tok}, nil
	}

	if level, ok := parseUint(tok); ok {
		return Quality{Numeric: true, Level: level}, nil
	}

	return Quality{}, fmt.Errorf("%w: quality %q", errNoMatch, tok)
}

// parseUint accepts a non-empty run of ASCII digits.
func parseUint(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseDecimal accepts digits with at most one decimal point, and at least
// one digit overall ("5", "5.", ".5", "12.25").
func parseDecimal(s string) (float64, bool) {
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.':
			dots++
		default:
			return 0, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
