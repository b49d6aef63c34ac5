package page

import (
	"errors"
	"math"
	"strings"
)

// ErrNoCandidate is returned when neither the point nor the spider turns up an image.
var ErrNoCandidate = errors.New("no image candidate found")

// Candidate is an image-bearing element together with the URL it exposes.
type Candidate struct {
	Node *Node
	Box  Rect

	sourceURL string
}

// NewCandidate binds url to n. The URL cannot be changed afterwards.
func NewCandidate(n *Node, url string) Candidate {
	c := Candidate{Node: n, sourceURL: url}
	if n != nil {
		c.Box = n.Box
	}
	return c
}

// SourceURL returns the resolved image URL.
func (c Candidate) SourceURL() string { return c.sourceURL }

// HasImage reports whether n is image-bearing: an image tag with a source,
// or any computed background image other than "none". A background such as
// a gradient counts even though ImageURL cannot extract a URL from it.
func HasImage(n *Node) bool {
	if n == nil {
		return false
	}
	if isImageTag(n) && n.Src != "" {
		return true
	}
	bg := strings.TrimSpace(n.Background)
	return bg != "" && bg != "none"
}

// ImageURL returns the image URL n exposes directly, or "".
func ImageURL(n *Node) string {
	if n == nil {
		return ""
	}
	if isImageTag(n) && n.Src != "" {
		return n.Src
	}
	bg := strings.TrimSpace(n.Background)
	if bg == "" || bg == "none" {
		return ""
	}
	return extractBackgroundImageURL(bg)
}

func isImageTag(n *Node) bool {
	return n.Tag == "img"
}

// Classify returns the image-bearing element at (x, y) whose box centre is
// nearest to the point, or nil. Obscured and pointer-transparent elements
// are considered. On equal distance the topmost element wins.
func Classify(d *Document, x, y float64) *Node {
	var best *Node
	bestDistance := math.Inf(1)
	for _, n := range d.ElementsAt(x, y) {
		if !HasImage(n) {
			continue
		}
		cx, cy := n.Box.Center()
		dist := math.Hypot(cx-x, cy-y)
		if dist < bestDistance {
			bestDistance = dist
			best = n
		}
	}
	return best
}

// TopmostAt returns the element a click at (x, y) would land on.
func TopmostAt(d *Document, x, y float64) *Node {
	for _, n := range d.ElementsAt(x, y) {
		if n.hitTestable() {
			return n
		}
	}
	return nil
}

// Resolve performs the full click resolution: the nearest image-bearing
// element at the point, falling back to a spider search from that element
// or from the clicked element when the point carries no image at all.
func Resolve(d *Document, x, y float64) (Candidate, error) {
	if cand := Classify(d, x, y); cand != nil {
		if u := ImageURL(cand); u != "" {
			return NewCandidate(cand, u), nil
		}
		if u := Spider(cand); u != "" {
			return NewCandidate(cand, u), nil
		}
	}
	if top := TopmostAt(d, x, y); top != nil {
		if u := Spider(top); u != "" {
			return NewCandidate(top, u), nil
		}
	}
	return Candidate{}, ErrNoCandidate
}

// extractBackgroundImageURL returns the first url(...) argument in a
// background-image value with surrounding quotes stripped.
func extractBackgroundImageURL(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	searchIdx := 0
	for searchIdx < len(v) {
		idx := strings.Index(lower[searchIdx:], "url(")
		if idx == -1 {
			return ""
		}
		idx += searchIdx
		start := idx + 4
		depth := 1
		end := start
		for end < len(v) && depth > 0 {
			switch v[end] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					raw := strings.TrimSpace(v[start:end])
					raw = strings.Trim(raw, "\"'")
					if raw != "" && !strings.EqualFold(raw, "none") {
						return raw
					}
				}
			}
			end++
		}
		if depth > 0 {
			return ""
		}
		searchIdx = end
	}
	return ""
}
