package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/overlay"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"imgpick/internal/picker"
	"imgpick/page"
)

// TabOptions configures the picking UI injected into a tab.
type TabOptions struct {
	Isolation    Isolation
	OutlineColor string
	FillColor    string
}

// Tab drives one Chrome page target. It implements picker.Host.
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    TabOptions
	outline *cdp.RGBA
	fill    *cdp.RGBA
	logger  zerolog.Logger

	mu         sync.Mutex
	queue      *eventQueue
	stopQueue  context.CancelFunc
	listenOnce sync.Once
}

var _ picker.Host = (*Tab)(nil)

func newTab(ctx context.Context, cancel context.CancelFunc, opts TabOptions, logger zerolog.Logger) *Tab {
	if opts.Isolation == "" {
		opts.Isolation = IsolationShadow
	}
	return &Tab{
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		outline: colorOr(opts.OutlineColor, defaultOutlineColor),
		fill:    colorOr(opts.FillColor, defaultFillColor),
		logger:  logger,
	}
}

// run executes actions on the tab, bounded by the caller's ctx.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// URL returns the tab's current location.
func (t *Tab) URL(ctx context.Context) (string, error) {
	var loc string
	err := t.run(ctx, chromedp.Location(&loc))
	return loc, err
}

// Snapshot captures the rendered element tree with geometry, paint order
// and the computed styles the resolver needs.
func (t *Tab) Snapshot(ctx context.Context) (*page.Document, error) {
	start := time.Now()
	var doc *page.Document
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		docs, strs, err := domsnapshot.CaptureSnapshot(snapshotStyles).
			WithIncludePaintOrder(true).
			WithIncludeDOMRects(true).
			Do(ctx)
		if err != nil {
			return err
		}
		doc = documentFromSnapshot(docs, strs)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("dom snapshot: %w", err)
	}
	t.logger.Debug().Dur("took", time.Since(start)).Int("elements", len(doc.Elements())).Msg("SNAP")
	return doc, nil
}

// Attach injects the banner and listeners and starts streaming their
// events. The channel closes on Teardown.
func (t *Tab) Attach(ctx context.Context) (<-chan picker.Event, error) {
	script, err := buildInstallScript(t.opts.Isolation)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.queue != nil {
		t.mu.Unlock()
		return nil, errors.New("browser: tab already attached")
	}
	q := newEventQueue()
	qctx, stop := context.WithCancel(t.ctx)
	t.queue, t.stopQueue = q, stop
	t.mu.Unlock()

	t.listenOnce.Do(func() {
		chromedp.ListenTarget(t.ctx, func(ev interface{}) {
			e, ok := ev.(*runtime.EventBindingCalled)
			if !ok || e.Name != bindingName {
				return
			}
			pe, err := decodePayload(e.Payload)
			if err != nil {
				t.logger.Debug().Err(err).Msg("EVT")
				return
			}
			t.mu.Lock()
			cur := t.queue
			t.mu.Unlock()
			if cur != nil {
				cur.push(pe)
			}
		})
	})
	go q.run(qctx)

	err = t.run(ctx,
		overlay.Enable(),
		runtime.AddBinding(bindingName),
		chromedp.Evaluate(script, nil),
	)
	if err != nil {
		return nil, fmt.Errorf("inject picker: %w", err)
	}
	t.logger.Debug().Str("isolation", string(t.opts.Isolation)).Msg("ATTACH")
	return q.out, nil
}

// DetachPointer removes the move and click listeners, keeping Escape.
func (t *Tab) DetachPointer(ctx context.Context) error {
	return t.run(ctx, chromedp.Evaluate(detachPointerScript, nil))
}

// Highlight outlines r using the DevTools overlay, which lives outside the
// page DOM.
func (t *Tab) Highlight(ctx context.Context, r page.Rect) error {
	x, y := int64(math.Round(r.Left)), int64(math.Round(r.Top))
	w, h := int64(math.Round(r.Width)), int64(math.Round(r.Height))
	return t.run(ctx, overlay.HighlightRect(x, y, w, h).
		WithColor(t.fill).
		WithOutlineColor(t.outline))
}

func (t *Tab) ClearHighlight(ctx context.Context) error {
	return t.run(ctx, overlay.HideHighlight())
}

// Teardown removes everything Attach and Highlight installed. Every step
// runs even when an earlier one fails.
func (t *Tab) Teardown(ctx context.Context) error {
	t.mu.Lock()
	q, stop := t.queue, t.stopQueue
	t.queue, t.stopQueue = nil, nil
	t.mu.Unlock()
	if q != nil {
		q.close()
		stop()
	}

	var errs []error
	steps := []struct {
		name   string
		action chromedp.Action
	}{
		{"teardown script", chromedp.Evaluate(teardownScript, nil)},
		{"hide highlight", overlay.HideHighlight()},
		{"remove binding", runtime.RemoveBinding(bindingName)},
		{"disable overlay", overlay.Disable()},
	}
	for _, s := range steps {
		if err := t.run(ctx, s.action); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	var left int
	if err := t.run(ctx, chromedp.Evaluate(injectedCountScript, &left)); err == nil && left != 0 {
		errs = append(errs, fmt.Errorf("%d injected nodes left after teardown", left))
	}
	t.logger.Debug().Int("errors", len(errs)).Msg("TEARDOWN")
	return errors.Join(errs...)
}

// Cookies returns the browser's cookies for u.
func (t *Tab) Cookies(ctx context.Context, u *url.URL) []*http.Cookie {
	var out []*http.Cookie
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().WithURLs([]string{u.String()}).Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			if hc := cookieFromNetwork(c); hc != nil {
				out = append(out, hc)
			}
		}
		return nil
	}))
	if err != nil {
		t.logger.Debug().Err(err).Str("url", u.String()).Msg("cookies")
		return nil
	}
	return out
}

// Close closes the tab's chromedp context.
func (t *Tab) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}

func cookieFromNetwork(c *network.Cookie) *http.Cookie {
	if c == nil {
		return nil
	}
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		hc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	switch c.SameSite {
	case network.CookieSameSiteLax:
		hc.SameSite = http.SameSiteLaxMode
	case network.CookieSameSiteStrict:
		hc.SameSite = http.SameSiteStrictMode
	case network.CookieSameSiteNone:
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}
