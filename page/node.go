// Package page models the element tree of a rendered web page and locates
// the image a user pointed at.
package page

import (
	"sort"
	"strings"
)

// Rect is an element box in viewport coordinates.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Empty reports whether the rect covers no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	if r.Empty() {
		return false
	}
	return x >= r.Left && x <= r.Left+r.Width && y >= r.Top && y <= r.Top+r.Height
}

// Center returns the geometric centre of r.
func (r Rect) Center() (float64, float64) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// Node is a single element of the page.
type Node struct {
	// Tag is the lower-case element name.
	Tag   string
	Attrs map[string]string
	// Src is the resolved current source of an image tag.
	Src string
	// Background is the computed background-image value; "none" when unset.
	Background    string
	PointerEvents string
	Hidden        bool
	Box           Rect
	// Order is the paint order; higher values paint on top.
	Order int

	Parent   *Node
	Children []*Node
}

// NewNode returns an element with no background image.
func NewNode(tag string) *Node {
	return &Node{
		Tag:        strings.ToLower(tag),
		Attrs:      map[string]string{},
		Background: "none",
	}
}

// Attr returns the named attribute or "".
func (n *Node) Attr(name string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// AppendChild links c under n and returns c.
func (n *Node) AppendChild(c *Node) *Node {
	c.Parent = n
	n.Children = append(n.Children, c)
	return c
}

// String renders a short selector-like label, used in logs.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(n.Tag)
	if id := n.Attr("id"); id != "" {
		b.WriteByte('#')
		b.WriteString(id)
	}
	for _, cls := range strings.Fields(n.Attr("class")) {
		b.WriteByte('.')
		b.WriteString(cls)
	}
	return b.String()
}

func (n *Node) hitTestable() bool {
	return !strings.EqualFold(strings.TrimSpace(n.PointerEvents), "none")
}

// Document is a snapshot of a page's element tree.
type Document struct {
	URL  string
	Root *Node
}

// Elements returns every element in document order.
func (d *Document) Elements() []*Node {
	if d == nil || d.Root == nil {
		return nil
	}
	var out []*Node
	stack := []*Node{d.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}

// ElementsAt returns every visible element whose box contains (x, y),
// topmost first. Elements that ignore pointer events are included, so an
// image covered by a transparent layer is still reported.
func (d *Document) ElementsAt(x, y float64) []*Node {
	all := d.Elements()
	var hits []*Node
	for i := len(all) - 1; i >= 0; i-- {
		n := all[i]
		if n.Hidden || !n.Box.Contains(x, y) {
			continue
		}
		hits = append(hits, n)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Order > hits[j].Order })
	return hits
}
