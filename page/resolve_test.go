package page

import (
	"errors"
	"testing"
)

func box(l, t, w, h float64) Rect { return Rect{Left: l, Top: t, Width: w, Height: h} }

func newImg(src string, r Rect) *Node {
	n := NewNode("img")
	n.Src = src
	n.Box = r
	return n
}

func newBg(tag, bg string, r Rect) *Node {
	n := NewNode(tag)
	n.Background = bg
	n.Box = r
	return n
}

func TestImageURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"img_src", newImg("https://example.com/a.png", Rect{}), "https://example.com/a.png"},
		{"img_empty_src", newImg("", Rect{}), ""},
		{"bg_double_quoted", newBg("div", `url("https://example.com/b.jpg")`, Rect{}), "https://example.com/b.jpg"},
		{"bg_single_quoted", newBg("div", `url('b.jpg')`, Rect{}), "b.jpg"},
		{"bg_unquoted", newBg("div", `url(b.jpg)`, Rect{}), "b.jpg"},
		{"bg_parens_in_url", newBg("div", `url("a(1).png")`, Rect{}), "a(1).png"},
		{"bg_layers", newBg("div", `linear-gradient(red, blue), url("c.gif")`, Rect{}), "c.gif"},
		{"bg_none", newBg("div", "none", Rect{}), ""},
		{"bg_gradient_only", newBg("div", "linear-gradient(red, blue)", Rect{}), ""},
		{"bg_malformed", newBg("div", `url("broken`, Rect{}), ""},
		{"nil", nil, ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ImageURL(tc.node); got != tc.want {
				t.Fatalf("ImageURL(%v) = %q, expected %q", tc.node, got, tc.want)
			}
		})
	}
}

func TestHasImage(t *testing.T) {
	t.Parallel()
	if !HasImage(newBg("div", "linear-gradient(red, blue)", Rect{})) {
		t.Fatal("gradient background should count as image-bearing")
	}
	if HasImage(newBg("div", "none", Rect{})) {
		t.Fatal("background none is not image-bearing")
	}
	if HasImage(newImg("", Rect{})) {
		t.Fatal("img without source is not image-bearing")
	}
	plain := NewNode("span")
	plain.Src = "https://example.com/x.png"
	if HasImage(plain) {
		t.Fatal("only image tags expose Src")
	}
}

func TestClassifyPicksNearestCentre(t *testing.T) {
	t.Parallel()
	root := NewNode("html")
	root.Box = box(0, 0, 1000, 1000)
	far := root.AppendChild(newImg("https://example.com/far.png", box(0, 0, 400, 400)))
	near := root.AppendChild(newImg("https://example.com/near.png", box(90, 90, 40, 40)))
	doc := &Document{Root: root}

	got := Classify(doc, 100, 100)
	if got != near {
		t.Fatalf("Classify = %v, expected near image", got)
	}
	if got := Classify(doc, 300, 300); got != far {
		t.Fatalf("Classify = %v, expected far image when near does not contain point", got)
	}
}

func TestClassifyIncludesPointerTransparentLayers(t *testing.T) {
	t.Parallel()
	root := NewNode("html")
	root.Box = box(0, 0, 500, 500)
	img := root.AppendChild(newImg("https://example.com/under.png", box(0, 0, 200, 200)))
	cover := root.AppendChild(NewNode("div"))
	cover.Box = box(0, 0, 200, 200)
	cover.PointerEvents = "none"
	cover.Order = 10
	doc := &Document{Root: root}

	hits := doc.ElementsAt(50, 50)
	if len(hits) != 3 || hits[0] != cover {
		t.Fatalf("ElementsAt = %v, expected cover first of 3", hits)
	}
	if got := Classify(doc, 50, 50); got != img {
		t.Fatalf("Classify = %v, expected obscured image", got)
	}
	if got := TopmostAt(doc, 50, 50); got != img {
		t.Fatalf("TopmostAt = %v, expected image below pointer-transparent cover", got)
	}
}

func TestClassifySkipsHidden(t *testing.T) {
	t.Parallel()
	root := NewNode("html")
	root.Box = box(0, 0, 100, 100)
	hidden := root.AppendChild(newImg("https://example.com/h.png", box(0, 0, 100, 100)))
	hidden.Hidden = true
	doc := &Document{Root: root}
	if got := Classify(doc, 10, 10); got != nil {
		t.Fatalf("Classify = %v, expected nil", got)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	root := NewNode("html")
	root.Box = box(0, 0, 800, 600)
	figure := root.AppendChild(NewNode("figure"))
	figure.Box = box(0, 0, 300, 300)
	figure.AppendChild(newImg("https://example.com/photo.jpg", box(0, 0, 300, 200)))
	caption := figure.AppendChild(NewNode("figcaption"))
	caption.Box = box(0, 200, 300, 100)
	doc := &Document{Root: root}

	cand, err := Resolve(doc, 150, 250)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cand.SourceURL() != "https://example.com/photo.jpg" {
		t.Fatalf("SourceURL = %q", cand.SourceURL())
	}
	if cand.Node != caption {
		t.Fatalf("candidate node = %v, expected caption origin", cand.Node)
	}

	direct, err := Resolve(doc, 10, 10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if direct.Box != box(0, 0, 300, 200) {
		t.Fatalf("candidate box = %+v", direct.Box)
	}

	if _, err := Resolve(doc, 700, 500); err == nil {
		t.Fatal("expected error for point over bare root")
	} else if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
}

func TestResolveGradientFallsBackToSpider(t *testing.T) {
	t.Parallel()
	root := NewNode("html")
	root.Box = box(0, 0, 400, 400)
	wrap := root.AppendChild(NewNode("div"))
	wrap.Box = box(0, 0, 400, 400)
	grad := wrap.AppendChild(newBg("div", "linear-gradient(red, blue)", box(0, 0, 100, 100)))
	wrap.AppendChild(newBg("div", `url("https://example.com/sprite.png")`, box(200, 200, 10, 10)))
	doc := &Document{Root: root}

	cand, err := Resolve(doc, 50, 50)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cand.Node != grad || cand.SourceURL() != "https://example.com/sprite.png" {
		t.Fatalf("Resolve = (%v, %q)", cand.Node, cand.SourceURL())
	}
}
