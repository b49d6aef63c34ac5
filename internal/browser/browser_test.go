package browser

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/chromedp/cdproto/network"
	"github.com/google/go-cmp/cmp"

	"imgpick/internal/picker"
	"imgpick/page"
)

func TestParseColor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  *cdp.RGBA
	}{
		{"hex", "#1a2b3c", &cdp.RGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 1}},
		{"hex_shorthand", "#abc", &cdp.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 1}},
		{"named", " Red ", &cdp.RGBA{R: 255, A: 1}},
		{"rgb", "rgb(255, 64, 0)", &cdp.RGBA{R: 255, G: 64, A: 1}},
		{"rgba_percent", "RGBA(100%,0%,50%,0.25)", &cdp.RGBA{R: 255, B: 127, A: 0.25}},
		{"rgba_alpha_clamped", "rgba(1,2,3,7)", &cdp.RGBA{R: 1, G: 2, B: 3, A: 1}},
		{"channel_clamped", "rgb(300,-4,12)", &cdp.RGBA{R: 255, B: 12, A: 1}},
		{"transparent", "transparent", nil},
		{"bad_hex", "#12345", nil},
		{"unknown", "papayawhip", nil},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseColor(tc.input)
			if ok != (tc.want != nil) {
				t.Fatalf("parseColor(%q) ok = %v", tc.input, ok)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("parseColor(%q) (-want +got):\n%s", tc.input, diff)
			}
		})
	}
	if got := colorOr("nope", defaultOutlineColor); got.R != 255 || got.A != 1 {
		t.Fatalf("colorOr fallback = %+v", got)
	}
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want picker.Event
	}{
		{`{"t":"move","x":10.5,"y":20}`, picker.Event{Kind: picker.EventMove, X: 10.5, Y: 20}},
		{`{"t":"click","x":1,"y":2}`, picker.Event{Kind: picker.EventClick, X: 1, Y: 2}},
		{`{"t":"key","key":"Escape"}`, picker.Event{Kind: picker.EventKey, Key: "Escape"}},
		{`{"t":"cancel"}`, picker.Event{Kind: picker.EventCancel}},
	}
	for _, tc := range tests {
		got, err := decodePayload(tc.raw)
		if err != nil {
			t.Fatalf("decodePayload(%s): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("decodePayload(%s) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
	for _, bad := range []string{`{"t":"wheel"}`, `not json`} {
		if _, err := decodePayload(bad); err == nil {
			t.Fatalf("decodePayload(%s) accepted", bad)
		}
	}
}

func TestEventQueueCoalescesMoves(t *testing.T) {
	t.Parallel()
	q := newEventQueue()
	q.push(picker.Event{Kind: picker.EventMove, X: 1})
	q.push(picker.Event{Kind: picker.EventMove, X: 2})
	q.push(picker.Event{Kind: picker.EventMove, X: 3})
	q.push(picker.Event{Kind: picker.EventClick, X: 3})
	q.push(picker.Event{Kind: picker.EventMove, X: 4})
	q.push(picker.Event{Kind: picker.EventKey, Key: "Escape"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.run(ctx)

	want := []picker.Event{
		{Kind: picker.EventMove, X: 3},
		{Kind: picker.EventClick, X: 3},
		{Kind: picker.EventMove, X: 4},
		{Kind: picker.EventKey, Key: "Escape"},
	}
	var got []picker.Event
	for len(got) < len(want) {
		select {
		case ev := <-q.out:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}

	q.close()
	q.push(picker.Event{Kind: picker.EventClick})
	select {
	case _, ok := <-q.out:
		if ok {
			t.Fatal("event delivered after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queue output not closed")
	}
}

func TestDocumentFromSnapshot(t *testing.T) {
	t.Parallel()
	strs := []string{
		"https://p.example/",              // 0
		"#document",                       // 1
		"HTML",                            // 2
		"BODY",                            // 3
		"IMG",                             // 4
		"DIV",                             // 5
		"id",                              // 6
		"hero",                            // 7
		"https://p.example/a.png",         // 8
		"none",                            // 9
		"auto",                            // 10
		"visible",                         // 11
		`url("https://p.example/bg.jpg")`, // 12
		injectedAttr,                      // 13
		"",                                // 14
		"SPAN",                            // 15
		"#text",                           // 16
		"hidden",                          // 17
	}
	style := func(bg, pe, vis int64) domsnapshot.ArrayOfStrings {
		return domsnapshot.ArrayOfStrings{bg, pe, vis}
	}
	snap := &domsnapshot.DocumentSnapshot{
		DocumentURL:   0,
		ScrollOffsetY: 100,
		Nodes: &domsnapshot.NodeTreeSnapshot{
			ParentIndex: []int64{-1, 0, 1, 2, 2, 2, 5, 4, 2, 2},
			NodeType:    []int64{9, 1, 1, 1, 1, 1, 1, 3, 1, 1},
			NodeName:    []domsnapshot.StringIndex{1, 2, 3, 4, 5, 5, 15, 16, 5, 5},
			Attributes: []domsnapshot.ArrayOfStrings{
				{}, {}, {}, {6, 7}, {}, {13, 14}, {}, {}, {}, {},
			},
			CurrentSourceURL: &domsnapshot.RareStringData{Index: []int64{3}, Value: []domsnapshot.StringIndex{8}},
		},
		Layout: &domsnapshot.LayoutTreeSnapshot{
			NodeIndex: []int64{1, 2, 3, 4, 5, 6, 8},
			Bounds: []domsnapshot.Rectangle{
				{0, 0, 800, 2000},
				{0, 0, 800, 2000},
				{10, 150, 50, 50},
				{100, 120, 200, 80},
				{0, 100, 800, 30},
				{0, 100, 100, 30},
				{0, 0, 10, 10},
			},
			Styles: []domsnapshot.ArrayOfStrings{
				style(9, 10, 11),
				style(9, 10, 11),
				style(9, 10, 11),
				style(12, 9, 11),
				style(9, 10, 11),
				style(9, 10, 11),
				style(12, 10, 17),
			},
			PaintOrders: []int64{0, 1, 2, 3, 9, 10, 4},
		},
	}

	doc := documentFromSnapshot([]*domsnapshot.DocumentSnapshot{snap}, strs)
	if doc.URL != "https://p.example/" || doc.Root == nil || doc.Root.Tag != "html" {
		t.Fatalf("unexpected document: url=%q root=%v", doc.URL, doc.Root)
	}

	type row struct {
		Tag, Src, Background, PointerEvents, Parent string
		Box                                         page.Rect
		Hidden                                      bool
		Order                                       int
	}
	var got []row
	for _, n := range doc.Elements() {
		r := row{Tag: n.Tag, Src: n.Src, Background: n.Background, PointerEvents: n.PointerEvents, Box: n.Box, Hidden: n.Hidden, Order: n.Order}
		if n.Parent != nil {
			r.Parent = n.Parent.Tag
		}
		got = append(got, r)
	}
	want := []row{
		{Tag: "html", Background: "none", PointerEvents: "auto", Box: page.Rect{Top: -100, Width: 800, Height: 2000}},
		{Tag: "body", Background: "none", PointerEvents: "auto", Parent: "html", Box: page.Rect{Top: -100, Width: 800, Height: 2000}, Order: 1},
		{Tag: "img", Src: "https://p.example/a.png", Background: "none", PointerEvents: "auto", Parent: "body", Box: page.Rect{Left: 10, Top: 50, Width: 50, Height: 50}, Order: 2},
		{Tag: "div", Background: `url("https://p.example/bg.jpg")`, PointerEvents: "none", Parent: "body", Box: page.Rect{Left: 100, Top: 20, Width: 200, Height: 80}, Order: 3},
		{Tag: "div", Background: `url("https://p.example/bg.jpg")`, PointerEvents: "auto", Parent: "body", Box: page.Rect{Top: -100, Width: 10, Height: 10}, Hidden: true, Order: 4},
		{Tag: "div", Background: "none", Parent: "body", Hidden: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("elements (-want +got):\n%s", diff)
	}
	if id := doc.Elements()[2].Attr("id"); id != "hero" {
		t.Fatalf("img id = %q", id)
	}

	cand, err := page.Resolve(doc, 150, 60)
	if err != nil || cand.SourceURL() != "https://p.example/bg.jpg" {
		t.Fatalf("Resolve over pointer-transparent background = %q, %v", cand.SourceURL(), err)
	}
}

func TestDocumentFromEmptySnapshot(t *testing.T) {
	t.Parallel()
	doc := documentFromSnapshot(nil, nil)
	if doc == nil || doc.Root != nil {
		t.Fatalf("expected empty document, got %+v", doc)
	}
	if _, err := page.Resolve(doc, 1, 1); err == nil {
		t.Fatal("empty document resolved a candidate")
	}
}

func TestCookieFromNetwork(t *testing.T) {
	t.Parallel()
	c := cookieFromNetwork(&network.Cookie{
		Name:     "sid",
		Value:    "abc",
		Domain:   ".p.example",
		Path:     "/",
		Expires:  1700000000.5,
		HTTPOnly: true,
		Secure:   true,
		SameSite: network.CookieSameSiteLax,
	})
	if c.Name != "sid" || c.Value != "abc" || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	if want := time.Unix(1700000000, 500000000).UTC(); !c.Expires.Equal(want) {
		t.Fatalf("Expires = %v, want %v", c.Expires, want)
	}
	if s := cookieFromNetwork(&network.Cookie{Name: "s", Session: true, Expires: -1}); !s.Expires.IsZero() {
		t.Fatalf("session cookie got expiry %v", s.Expires)
	}
	if cookieFromNetwork(nil) != nil {
		t.Fatal("nil cookie converted")
	}
}

func TestInstallScript(t *testing.T) {
	t.Parallel()
	for _, iso := range []Isolation{IsolationShadow, IsolationNone} {
		js, err := buildInstallScript(iso)
		if err != nil {
			t.Fatalf("buildInstallScript(%s): %v", iso, err)
		}
		for _, want := range []string{`"binding":"` + bindingName + `"`, `"isolation":"` + string(iso) + `"`, `"attr":"` + injectedAttr + `"`} {
			if !strings.Contains(js, want) {
				t.Fatalf("%s script missing %s", iso, want)
			}
		}
		if strings.Contains(js, "%!") {
			t.Fatalf("%s script has a formatting error", iso)
		}
	}
	if _, err := ParseIsolation("iframe"); err == nil {
		t.Fatal("unknown isolation accepted")
	}
	if iso, _ := ParseIsolation(""); iso != IsolationShadow {
		t.Fatalf("default isolation = %s", iso)
	}
}
