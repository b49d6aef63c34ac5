package browser

import (
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
)

const (
	defaultOutlineColor = "#ff0000"
	defaultFillColor    = "rgba(255, 0, 0, 0.08)"
)

var namedColors = map[string]cdp.RGBA{
	"black":  {A: 1},
	"white":  {R: 255, G: 255, B: 255, A: 1},
	"red":    {R: 255, A: 1},
	"green":  {G: 128, A: 1},
	"blue":   {B: 255, A: 1},
	"yellow": {R: 255, G: 255, A: 1},
	"orange": {R: 255, G: 165, A: 1},
	"purple": {R: 128, B: 128, A: 1},
}

// parseColor reads a CSS colour (#rgb, #rrggbb, rgb(), rgba() or a basic
// name) into the overlay's RGBA form.
func parseColor(input string) (*cdp.RGBA, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" || s == "transparent" {
		return nil, false
	}
	if c, ok := namedColors[s]; ok {
		return &c, true
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s)
	}
	if strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba(") {
		return parseRGBFunctional(s)
	}
	return nil, false
}

func parseHex(value string) (*cdp.RGBA, bool) {
	hex := strings.TrimPrefix(value, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, false
	}
	return &cdp.RGBA{R: int64(v >> 16 & 0xff), G: int64(v >> 8 & 0xff), B: int64(v & 0xff), A: 1}, true
}

func parseRGBFunctional(expr string) (*cdp.RGBA, bool) {
	open := strings.IndexByte(expr, '(')
	end := strings.LastIndexByte(expr, ')')
	if open < 0 || end <= open+1 {
		return nil, false
	}
	parts := strings.Split(expr[open+1:end], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return nil, false
	}
	var ch [3]int64
	for i := 0; i < 3; i++ {
		v, ok := channel(parts[i])
		if !ok {
			return nil, false
		}
		ch[i] = v
	}
	alpha := 1.0
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return nil, false
		}
		alpha = min(max(a, 0), 1)
	}
	return &cdp.RGBA{R: ch[0], G: ch[1], B: ch[2], A: alpha}, true
}

func channel(component string) (int64, bool) {
	component = strings.TrimSpace(component)
	if pct, ok := strings.CutSuffix(component, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return 0, false
		}
		return int64(min(max(v, 0), 100) * 255 / 100), true
	}
	v, err := strconv.Atoi(component)
	if err != nil {
		return 0, false
	}
	return int64(min(max(v, 0), 255)), true
}

// colorOr parses value, falling back to def.
func colorOr(value, def string) *cdp.RGBA {
	if c, ok := parseColor(value); ok {
		return c
	}
	c, _ := parseColor(def)
	return c
}
