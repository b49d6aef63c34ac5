// Package convert fetches a picked image, re-encodes it to the requested
// format and hands the result to a Saver, falling back to the original
// file when conversion is impossible.
package convert

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Format is a target output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatSVG  Format = "svg"
)

// Formats lists the supported targets in menu order.
var Formats = []Format{FormatPNG, FormatJPEG, FormatSVG}

// ParseFormat accepts a format name, case-insensitively; "jpg" aliases jpeg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "svg":
		return FormatSVG, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// MIME returns the media type written for f.
func (f Format) MIME() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatSVG:
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

var (
	// ErrUnsupportedSVG: svg requested for a source that is not an SVG file.
	ErrUnsupportedSVG = errors.New("SVG conversion only supported for actual SVG images")
	// ErrFetch covers network errors, blocked requests and non-2xx statuses.
	ErrFetch = errors.New("fetch failed")
	// ErrDecode: fetched bytes are not a decodable image.
	ErrDecode = errors.New("decode failed")
)

// FetchError describes a failed fetch. It matches ErrFetch with errors.Is.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Request asks for one image in one format.
type Request struct {
	SourceURL string
	Format    Format
	// PageURL is the page the image was picked on. It is sent as Referer
	// and decides whether cookies may accompany the fetch.
	PageURL string
}

// NewRequest validates and builds a Request. The format is stored in its
// canonical form, so "jpg" becomes FormatJPEG.
func NewRequest(sourceURL string, format Format, pageURL string) (Request, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return Request{}, errors.New("empty source url")
	}
	f, err := ParseFormat(string(format))
	if err != nil {
		return Request{}, err
	}
	return Request{SourceURL: sourceURL, Format: f, PageURL: pageURL}, nil
}

// Download is a save action: converted bytes, or the original resource.
// A fallback carries the original bytes in Data when they were already
// fetched, and always the Href they came from.
type Download struct {
	Filename string
	Data     []byte
	MIME     string
	Href     string
	// PageURL is the page Href was picked on, for fetching it again.
	PageURL string
}

// DataURI renders a converted payload as a data: URI.
func (d Download) DataURI() string {
	if d.Data == nil {
		return ""
	}
	return "data:" + d.MIME + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

// Result is the outcome of a conversion: a Download or an error, never both.
type Result struct {
	Download *Download
	Err      error
	// Fallback is set when Download points at the unconverted original.
	Fallback bool
}
