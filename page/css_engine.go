package page

import (
	"context"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"imgpick/internal/httpbody"
)

const (
	maxImportDepth     = 16
	maxStylesheets     = 12
	maxStylesheetBytes = 2 << 20
)

// layoutProps are the only properties static layout and image resolution
// read. Declarations of anything else are dropped while parsing.
var layoutProps = map[string]bool{
	"background":       true,
	"background-image": true,
	"pointer-events":   true,
	"display":          true,
	"visibility":       true,
	"z-index":          true,
	"left":             true,
	"top":              true,
	"width":            true,
	"height":           true,
}

// imageFuncs are the CSS functions that produce a background image layer.
var imageFuncs = []string{"url(", "linear-gradient(", "radial-gradient(", "conic-gradient(", "repeating-linear-gradient(", "image-set("}

// Inline style outranks every selector.
var inlineSpecificity = cascadia.Specificity{1 << 12, 0, 0}

type declaration struct {
	prop      string
	value     string
	important bool
}

type styleRule struct {
	sel   cascadia.Sel
	spec  cascadia.Specificity
	decls []declaration
	order int
}

// Stylesheet is the ordered rule set collected from a document.
type Stylesheet struct {
	rules []styleRule
}

// sheetLoader collects rules from <style> elements, stylesheet links and
// their @imports in document order.
type sheetLoader struct {
	ctx     context.Context
	opts    *LoadOptions
	vp      Viewport
	logger  zerolog.Logger
	seen    map[string]bool
	fetched int
	order   int
	sheet   Stylesheet
}

func buildStylesheet(ctx context.Context, doc *html.Node, base string, opts *LoadOptions) *Stylesheet {
	if doc == nil {
		return nil
	}
	l := &sheetLoader{
		ctx:    ctx,
		opts:   opts,
		vp:     opts.viewport(),
		logger: zerolog.Nop(),
		seen:   map[string]bool{},
	}
	if opts != nil {
		l.logger = opts.Logger
	}

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "style":
				if media := getAttr(n, "media"); media == "" || mediaMatches(media, l.vp) {
					l.parse(textContent(n), base, 0)
				}
			case "link":
				if isStylesheetLink(n, l.vp) {
					l.external(resolveAbsURL(base, getAttr(n, "href")), 0)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	if len(l.sheet.rules) == 0 {
		return nil
	}
	return &l.sheet
}

func isStylesheetLink(n *html.Node, vp Viewport) bool {
	rel := strings.Fields(strings.ToLower(getAttr(n, "rel")))
	typ := strings.ToLower(strings.TrimSpace(getAttr(n, "type")))
	if (typ != "" && typ != "text/css") || strings.TrimSpace(getAttr(n, "href")) == "" {
		return false
	}
	if media := getAttr(n, "media"); media != "" && !mediaMatches(media, vp) {
		return false
	}
	for _, r := range rel {
		if r == "stylesheet" {
			return true
		}
	}
	return false
}

func (l *sheetLoader) external(abs string, depth int) {
	if abs == "" || l.seen[abs] || l.fetched >= maxStylesheets || depth > maxImportDepth {
		return
	}
	l.seen[abs] = true
	l.fetched++
	resp, err := get(l.ctx, l.opts, abs, "text/css,*/*;q=0.1")
	if err != nil {
		l.logger.Debug().Err(err).Str("url", abs).Msg("stylesheet skipped")
		return
	}
	body, err := io.ReadAll(io.LimitReader(httpbody.Decode(resp), maxStylesheetBytes))
	resp.Body.Close()
	if err != nil {
		l.logger.Debug().Err(err).Str("url", abs).Msg("stylesheet read")
		return
	}
	l.parse(string(body), abs, depth+1)
}

func (l *sheetLoader) parse(text, base string, depth int) {
	if strings.TrimSpace(text) == "" {
		return
	}
	sheet, err := parser.Parse(text)
	if err != nil {
		l.logger.Debug().Err(err).Str("base", base).Msg("css parse")
		return
	}
	l.walk(sheet.Rules, base, depth)
}

func (l *sheetLoader) walk(rules []*cssast.Rule, base string, depth int) {
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if rule.Kind == cssast.QualifiedRule {
			l.add(rule, base)
			continue
		}
		switch strings.ToLower(rule.Name) {
		case "@media":
			if mediaMatches(rule.Prelude, l.vp) {
				l.walk(rule.Rules, base, depth)
			}
		case "@import":
			target, media := importTarget(rule.Prelude)
			if target != "" && (media == "" || mediaMatches(media, l.vp)) {
				l.external(resolveAbsURL(base, target), depth)
			}
		default:
			// @supports, @layer and friends are assumed to apply.
			if rule.EmbedsRules() {
				l.walk(rule.Rules, base, depth)
			}
		}
	}
}

func (l *sheetLoader) add(rule *cssast.Rule, base string) {
	decls := declarations(rule.Declarations, base)
	if len(decls) == 0 || len(rule.Selectors) == 0 {
		return
	}
	group, err := cascadia.ParseGroup(strings.Join(rule.Selectors, ","))
	if err != nil {
		l.logger.Debug().Err(err).Strs("selectors", rule.Selectors).Msg("css selector")
		return
	}
	for _, sel := range group {
		if sel == nil || sel.PseudoElement() != "" {
			continue
		}
		l.sheet.rules = append(l.sheet.rules, styleRule{sel: sel, spec: sel.Specificity(), decls: decls, order: l.order})
		l.order++
	}
}

// declarations keeps the layout properties of list. Background values get
// absolute url() arguments, the way a browser reports computed background
// images, and the background shorthand is reduced to its image layer.
func declarations(list []*cssast.Declaration, base string) []declaration {
	var out []declaration
	for _, d := range list {
		if d == nil {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		val := strings.TrimSpace(d.Value)
		if !layoutProps[prop] || val == "" {
			continue
		}
		if prop == "background" || prop == "background-image" {
			val = absoluteURLs(val, base)
		}
		if prop == "background" {
			prop, val = "background-image", backgroundLayer(val)
		}
		out = append(out, declaration{prop: prop, value: val, important: d.Important})
	}
	return out
}

type cascaded struct {
	value     string
	important bool
	spec      cascadia.Specificity
	order     int
}

func (c cascaded) overriddenBy(next cascaded) bool {
	if c.important != next.important {
		return next.important
	}
	if c.spec != next.spec {
		return c.spec.Less(next.spec)
	}
	return next.order >= c.order
}

// computed returns the cascaded layout properties of n: matching rules by
// importance, specificity and order, then the style attribute on top.
func (ss *Stylesheet) computed(n *html.Node, base string, logger zerolog.Logger) map[string]string {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	won := map[string]cascaded{}
	apply := func(d declaration, spec cascadia.Specificity, order int) {
		next := cascaded{value: d.value, important: d.important, spec: spec, order: order}
		if prev, ok := won[d.prop]; !ok || prev.overriddenBy(next) {
			won[d.prop] = next
		}
	}
	if ss != nil {
		for _, r := range ss.rules {
			if !r.sel.Match(n) {
				continue
			}
			for _, d := range r.decls {
				apply(d, r.spec, r.order)
			}
		}
	}
	if inline := strings.TrimSpace(getAttr(n, "style")); inline != "" {
		// The parser only commits a declaration at ';' or '}'.
		if !strings.HasSuffix(inline, ";") {
			inline += ";"
		}
		list, err := parser.ParseDeclarations(inline)
		if err != nil {
			logger.Debug().Err(err).Str("style", inline).Msg("inline style")
		}
		for i, d := range declarations(list, base) {
			apply(d, inlineSpecificity, 1<<30+i)
		}
	}
	if len(won) == 0 {
		return nil
	}
	out := make(map[string]string, len(won))
	for prop, c := range won {
		out[prop] = c.value
	}
	return out
}

// mediaMatches reports whether any query in a comma-separated media list
// applies to a screen of size vp.
func mediaMatches(list string, vp Viewport) bool {
	if strings.TrimSpace(list) == "" {
		return true
	}
	for _, q := range strings.Split(strings.ToLower(list), ",") {
		if queryMatches(strings.TrimSpace(q), vp) {
			return true
		}
	}
	return false
}

func queryMatches(q string, vp Viewport) bool {
	if q == "" {
		return false
	}
	negate := false
	if rest, ok := strings.CutPrefix(q, "not "); ok {
		negate, q = true, rest
	}
	q = strings.TrimPrefix(q, "only ")
	match := true
	for i, term := range strings.Split(q, " and ") {
		term = strings.TrimSpace(term)
		if i == 0 && !strings.HasPrefix(term, "(") {
			match = match && (term == "all" || term == "screen")
			continue
		}
		match = match && featureMatches(strings.Trim(term, "() "), vp)
	}
	return match != negate
}

// featureMatches evaluates one media feature. Unknown features match.
func featureMatches(expr string, vp Viewport) bool {
	name, value, _ := strings.Cut(expr, ":")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	switch name {
	case "orientation":
		orientation := "portrait"
		if vp.Width > vp.Height {
			orientation = "landscape"
		}
		return value == "" || value == orientation
	case "width", "min-width", "max-width", "height", "min-height", "max-height":
		axis := vp.Width
		if strings.HasSuffix(name, "height") {
			axis = vp.Height
		}
		px, ok := lengthPx(value, axis)
		if !ok {
			return true
		}
		switch {
		case strings.HasPrefix(name, "min-"):
			return axis >= px
		case strings.HasPrefix(name, "max-"):
			return axis <= px
		}
		return axis == px
	}
	return true
}

// lengthPx converts a CSS length to pixels. Percentages and viewport units
// resolve against base; em and rem assume a 16px font.
func lengthPx(val string, base int) (int, bool) {
	v := strings.ToLower(strings.TrimSpace(val))
	v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
	num, scale := v, 1.0
	switch {
	case strings.HasSuffix(v, "px"):
		num = v[:len(v)-2]
	case strings.HasSuffix(v, "rem"):
		num, scale = v[:len(v)-3], 16
	case strings.HasSuffix(v, "em"):
		num, scale = v[:len(v)-2], 16
	case strings.HasSuffix(v, "%"), strings.HasSuffix(v, "vw"), strings.HasSuffix(v, "vh"):
		if base <= 0 {
			return 0, false
		}
		num, scale = strings.TrimRight(v, "%vwh"), float64(base)/100
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(f * scale)), true
}

// importTarget splits an @import prelude into its URL and media list.
func importTarget(prelude string) (string, string) {
	s := strings.TrimSpace(prelude)
	if len(s) > 4 && strings.EqualFold(s[:4], "url(") {
		inner, after, ok := strings.Cut(s[4:], ")")
		if !ok {
			return "", ""
		}
		return unquote(inner), strings.TrimSpace(after)
	}
	if len(s) > 1 && (s[0] == '"' || s[0] == '\'') {
		if end := strings.IndexByte(s[1:], s[0]); end >= 0 {
			return s[1 : end+1], strings.TrimSpace(s[end+2:])
		}
	}
	return "", ""
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// absoluteURLs rewrites every url(...) argument in value to an absolute,
// double-quoted URL. data: URIs are left alone.
func absoluteURLs(value, base string) string {
	var b strings.Builder
	for {
		i := strings.Index(strings.ToLower(value), "url(")
		if i < 0 {
			break
		}
		end := strings.IndexByte(value[i:], ')')
		if end < 0 {
			break
		}
		end += i
		ref := unquote(value[i+4 : end])
		if base != "" && !strings.HasPrefix(ref, "data:") {
			if abs := resolveAbsURL(base, ref); abs != "" {
				ref = abs
			}
		}
		b.WriteString(value[:i])
		b.WriteString(`url("` + ref + `")`)
		value = value[end+1:]
	}
	b.WriteString(value)
	return b.String()
}

// backgroundLayer pulls the first image layer out of a background
// shorthand. A shorthand without an image resets the layer to "none".
func backgroundLayer(value string) string {
	lower := strings.ToLower(value)
	start := -1
	for _, fn := range imageFuncs {
		if i := strings.Index(lower, fn); i >= 0 && (start < 0 || i < start) {
			start = i
		}
	}
	if start < 0 {
		return "none"
	}
	depth := 0
	for i := start; i < len(value); i++ {
		switch value[i] {
		case '(':
			depth++
		case ')':
			if depth--; depth == 0 {
				return value[start : i+1]
			}
		}
	}
	return "none"
}

func resolveAbsURL(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == "" {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
