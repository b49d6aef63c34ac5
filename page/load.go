package page

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"imgpick/internal/httpbody"
)

// Viewport is the layout viewport used for media queries and the root box.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport matches a common desktop window.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// LoadOptions controls static document loading.
type LoadOptions struct {
	Viewport Viewport
	// Client fetches the document and external stylesheets. Nil disables
	// external stylesheets and remote documents.
	Client *http.Client
	Header http.Header
	Logger zerolog.Logger
}

func (o *LoadOptions) viewport() Viewport {
	if o == nil || o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		return DefaultViewport
	}
	return o.Viewport
}

// Parse builds a Document from HTML without a rendering engine. Element
// boxes come from CSS left/top/width/height (px or %) relative to the
// parent box, so only explicitly sized elements are hit-testable; <img>
// falls back to its width/height attributes and html/body fill the
// viewport. z-index sets paint order.
func Parse(ctx context.Context, r io.Reader, base string, opts *LoadOptions) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	ss := buildStylesheet(ctx, root, base, opts)
	vp := opts.viewport()
	logger := zerolog.Nop()
	if opts != nil {
		logger = opts.Logger
	}

	doc := &Document{URL: base}
	var walk func(h *html.Node, parent *Node)
	walk = func(h *html.Node, parent *Node) {
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			n := staticNode(c, parent, ss, base, vp, logger)
			if parent == nil {
				doc.Root = n
			} else {
				parent.AppendChild(n)
			}
			walk(c, n)
		}
	}
	walk(root, nil)
	if doc.Root == nil {
		return nil, fmt.Errorf("parse html: no root element")
	}
	return doc, nil
}

var errNoClient = errors.New("no http client configured")

// get issues a GET with the configured headers and fails on a non-2xx
// status. The caller closes the body.
func get(ctx context.Context, opts *LoadOptions, target, accept string) (*http.Response, error) {
	if opts == nil || opts.Client == nil {
		return nil, errNoClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, vals := range opts.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", accept)
	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp, nil
}

// Load reads a document from a local path or an http(s) URL.
func Load(ctx context.Context, target string, opts *LoadOptions) (*Document, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		resp, err := get(ctx, opts, target, "text/html,application/xhtml+xml")
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", target, err)
		}
		defer resp.Body.Close()
		return Parse(ctx, httpbody.Decode(resp), resp.Request.URL.String(), opts)
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(ctx, f, "", opts)
}

func staticNode(h *html.Node, parent *Node, ss *Stylesheet, base string, vp Viewport, logger zerolog.Logger) *Node {
	n := NewNode(h.Data)
	for _, a := range h.Attr {
		n.Attrs[strings.ToLower(a.Key)] = a.Val
	}
	props := ss.computed(h, base, logger)

	if n.Tag == "img" {
		if src := strings.TrimSpace(n.Attr("src")); src != "" {
			if abs := resolveAbsURL(base, src); abs != "" && !strings.HasPrefix(src, "data:") {
				n.Src = abs
			} else {
				n.Src = src
			}
		}
	}
	if bg := strings.TrimSpace(props["background-image"]); bg != "" {
		n.Background = bg
	}
	n.PointerEvents = strings.ToLower(strings.TrimSpace(props["pointer-events"]))
	if parent != nil && parent.Hidden {
		n.Hidden = true
	}
	if strings.EqualFold(strings.TrimSpace(props["display"]), "none") ||
		strings.EqualFold(strings.TrimSpace(props["visibility"]), "hidden") {
		n.Hidden = true
	}
	if z, err := strconv.Atoi(strings.TrimSpace(props["z-index"])); err == nil {
		n.Order = z
	} else if parent != nil {
		n.Order = parent.Order
	}
	n.Box = staticBox(n, parent, props, vp)
	return n
}

func staticBox(n *Node, parent *Node, props map[string]string, vp Viewport) Rect {
	if n.Tag == "html" || n.Tag == "body" {
		return Rect{Width: float64(vp.Width), Height: float64(vp.Height)}
	}
	var origin Rect
	if parent != nil {
		origin = parent.Box
	}
	length := func(key string, base float64) (float64, bool) {
		px, ok := lengthPx(props[key], int(base))
		return float64(px), ok
	}
	var r Rect
	r.Left = origin.Left
	r.Top = origin.Top
	if v, ok := length("left", origin.Width); ok {
		r.Left += v
	}
	if v, ok := length("top", origin.Height); ok {
		r.Top += v
	}
	if v, ok := length("width", origin.Width); ok {
		r.Width = v
	} else if n.Tag == "img" {
		if w, err := strconv.Atoi(n.Attr("width")); err == nil {
			r.Width = float64(w)
		}
	}
	if v, ok := length("height", origin.Height); ok {
		r.Height = v
	} else if n.Tag == "img" {
		if h, err := strconv.Atoi(n.Attr("height")); err == nil {
			r.Height = float64(h)
		}
	}
	return r
}
