// Package browser implements the picking host on a Chrome tab driven over
// the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Options selects how Chrome is reached.
type Options struct {
	// RemoteURL attaches to a running browser (ws:// or http://host:port)
	// instead of launching one.
	RemoteURL    string
	Headless     bool
	ExecPath     string
	UserDataDir  string
	WindowWidth  int
	WindowHeight int
	Logger       zerolog.Logger
}

// Browser owns the allocator and browser contexts.
type Browser struct {
	opts          Options
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	logger        zerolog.Logger
}

func execAllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("hide-scrollbars", opts.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	if opts.Headless {
		out = append(out, chromedp.Flag("disable-gpu", true))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	return out
}

// Start launches or connects to Chrome.
func Start(ctx context.Context, opts Options) (*Browser, error) {
	b := &Browser{opts: opts, logger: opts.Logger}
	if remote := strings.TrimSpace(opts.RemoteURL); remote != "" {
		b.allocCtx, b.cancelAlloc = chromedp.NewRemoteAllocator(ctx, remote)
	} else {
		b.allocCtx, b.cancelAlloc = chromedp.NewExecAllocator(ctx, execAllocatorOptions(opts)...)
	}
	b.browserCtx, b.cancelBrowser = chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			b.logger.Debug().Msgf(format, args...)
		}),
	)
	return b, nil
}

// Open returns a tab showing target. With an empty target on a remote
// browser, the first existing page is used as is.
func (b *Browser) Open(ctx context.Context, targetURL string, topts TabOptions) (*Tab, error) {
	var tabCtx context.Context
	var cancel context.CancelFunc
	switch {
	case b.opts.RemoteURL != "" && targetURL == "":
		id, err := b.firstPage()
		if err != nil {
			return nil, err
		}
		tabCtx, cancel = chromedp.NewContext(b.browserCtx, chromedp.WithTargetID(id))
	case b.opts.RemoteURL != "":
		tabCtx, cancel = chromedp.NewContext(b.browserCtx)
	default:
		// The first run on the browser context opens its initial tab.
		tabCtx, cancel = b.browserCtx, func() {}
	}
	// The first Run ties the target's lifetime to the context it is given,
	// so it must see tabCtx itself rather than a derived one.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("attach tab: %w", err)
	}
	tab := newTab(tabCtx, cancel, topts, b.logger)
	if targetURL != "" {
		err := tab.run(ctx,
			chromedp.Navigate(targetURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open %s: %w", targetURL, err)
		}
	}
	b.logger.Info().Str("url", targetURL).Bool("remote", b.opts.RemoteURL != "").Msg("tab ready")
	return tab, nil
}

func (b *Browser) firstPage() (target.ID, error) {
	infos, err := chromedp.Targets(b.browserCtx)
	if err != nil {
		return "", fmt.Errorf("list targets: %w", err)
	}
	for _, info := range infos {
		if info.Type == "page" && !strings.HasPrefix(info.URL, "devtools://") {
			b.logger.Debug().Str("url", info.URL).Str("title", info.Title).Msg("attaching to page")
			return info.TargetID, nil
		}
	}
	return "", errors.New("no page target in remote browser")
}

// Close shuts the browser down, or disconnects from a remote one.
func (b *Browser) Close() {
	if b.cancelBrowser != nil {
		b.cancelBrowser()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
}
