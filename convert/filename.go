package convert

import (
	"net/url"
	"strings"
)

const defaultExtension = "jpg"

// fallbackExtension picks the extension for an unconverted download: the
// text after the last dot of the final path segment, without query or
// fragment, or "jpg" when there is none.
func fallbackExtension(raw string) string {
	if strings.HasPrefix(raw, "data:") {
		return dataURIExtension(raw)
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i != -1 {
		p = p[:i]
	}
	if i := strings.LastIndexByte(p, '/'); i != -1 {
		p = p[i+1:]
	}
	dot := strings.LastIndexByte(p, '.')
	if dot == -1 || dot == len(p)-1 {
		return defaultExtension
	}
	return sanitizeExtension(p[dot+1:])
}

func dataURIExtension(raw string) string {
	meta := strings.TrimPrefix(raw, "data:")
	if i := strings.IndexAny(meta, ";,"); i != -1 {
		meta = meta[:i]
	}
	slash := strings.IndexByte(meta, '/')
	if slash == -1 {
		return defaultExtension
	}
	sub := meta[slash+1:]
	if i := strings.IndexByte(sub, '+'); i != -1 {
		sub = sub[:i]
	}
	return sanitizeExtension(sub)
}

func sanitizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || len(ext) > 10 {
		return defaultExtension
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExtension
		}
	}
	return ext
}

func convertedFilename(f Format) string {
	return "download." + string(f)
}
