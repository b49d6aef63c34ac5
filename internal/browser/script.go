package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Isolation controls how the instruction banner is shielded from page CSS.
type Isolation string

const (
	IsolationShadow Isolation = "shadow"
	IsolationNone   Isolation = "none"
)

// ParseIsolation accepts "shadow" or "none"; empty means shadow.
func ParseIsolation(s string) (Isolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shadow":
		return IsolationShadow, nil
	case "none", "off":
		return IsolationNone, nil
	}
	return "", fmt.Errorf("unknown isolation mode %q", s)
}

const bannerText = "Click on an image (or background image). Press Esc or click Cancel to abort."

const bannerCSS = `
.bar{position:fixed;top:0;left:0;right:0;z-index:2147483647;display:flex;align-items:center;
justify-content:space-between;gap:12px;padding:8px 14px;background:rgba(0,0,0,.82);color:#fff;
font:14px/1.4 system-ui,-apple-system,sans-serif;box-shadow:0 2px 6px rgba(0,0,0,.3)}
.bar button{all:unset;cursor:pointer;padding:3px 12px;border:1px solid #fff;border-radius:3px;color:#fff}
.bar button:hover{background:#fff;color:#000}`

// installScript adds the listeners and banner. It is idempotent per page.
const installScript = `(function(cfg){
if (window.__imgpick) return;
var send = function(m){ try { window[cfg.binding](JSON.stringify(m)); } catch (e) {} };
var host = document.createElement("div");
host.setAttribute(cfg.attr, "");
var root = host;
if (cfg.isolation === "shadow" && host.attachShadow) {
  root = host.attachShadow({mode: "closed"});
} else {
  host.style.cssText = "all:initial";
}
var style = document.createElement("style");
style.textContent = cfg.isolation === "shadow" ? cfg.css : cfg.css.replace(/\.bar/g, "." + cfg.attr + "-bar");
var bar = document.createElement("div");
bar.className = cfg.isolation === "shadow" ? "bar" : cfg.attr + "-bar";
var label = document.createElement("span");
label.textContent = cfg.text;
var cancel = document.createElement("button");
cancel.type = "button";
cancel.textContent = "Cancel";
cancel.addEventListener("click", function(e){ e.preventDefault(); e.stopPropagation(); send({t: "cancel"}); });
bar.appendChild(label);
bar.appendChild(cancel);
root.appendChild(style);
root.appendChild(bar);
(document.body || document.documentElement).appendChild(host);
var inBanner = function(e){ return e.composedPath && e.composedPath().indexOf(host) !== -1; };
var onMove = function(e){ if (!inBanner(e)) send({t: "move", x: e.clientX, y: e.clientY}); };
var onClick = function(e){
  if (inBanner(e)) return;
  e.preventDefault();
  e.stopPropagation();
  send({t: "click", x: e.clientX, y: e.clientY});
};
var onKey = function(e){
  if (e.key === "Escape" || e.key === "Esc") { e.preventDefault(); send({t: "key", key: e.key}); }
};
window.addEventListener("mousemove", onMove, true);
window.addEventListener("click", onClick, true);
window.addEventListener("keydown", onKey, true);
var pointerOn = true;
window.__imgpick = {
  detachPointer: function(){
    if (!pointerOn) return;
    pointerOn = false;
    window.removeEventListener("mousemove", onMove, true);
    window.removeEventListener("click", onClick, true);
  },
  teardown: function(){
    this.detachPointer();
    window.removeEventListener("keydown", onKey, true);
    if (host.parentNode) host.parentNode.removeChild(host);
    delete window.__imgpick;
  }
};
})(%s);`

const detachPointerScript = `window.__imgpick && window.__imgpick.detachPointer(); true`

const teardownScript = `window.__imgpick && window.__imgpick.teardown(); true`

// injectedCountScript reports leftovers, used to verify teardown.
const injectedCountScript = `document.querySelectorAll("[` + injectedAttr + `]").length + (window.__imgpick ? 1 : 0)`

type scriptConfig struct {
	Binding   string    `json:"binding"`
	Attr      string    `json:"attr"`
	Isolation Isolation `json:"isolation"`
	CSS       string    `json:"css"`
	Text      string    `json:"text"`
}

func buildInstallScript(iso Isolation) (string, error) {
	cfg, err := json.Marshal(scriptConfig{
		Binding:   bindingName,
		Attr:      injectedAttr,
		Isolation: iso,
		CSS:       bannerCSS,
		Text:      bannerText,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(installScript, cfg), nil
}
