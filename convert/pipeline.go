package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imgpick/internal/httpbody"
)

const (
	svgUnsupportedMessage = "SVG conversion only supported for actual SVG images."
	fallbackMessage       = "Failed to fetch image. Downloading original file instead."

	defaultFetchTimeout = 30 * time.Second
	defaultMaxBytes     = 64 << 20
	defaultUserAgent    = "imgpick/1.0"

	// Only formats image.Decode has a decoder registered for.
	acceptImages = "image/webp,image/png,image/jpeg,image/gif,image/*;q=0.8"
)

// Notifier shows messages to the user. Alert blocks until acknowledged.
type Notifier interface {
	Alert(ctx context.Context, msg string) error
	Warn(ctx context.Context, msg string) error
}

// Saver performs the single save action of a session.
type Saver interface {
	Save(ctx context.Context, d Download) (string, error)
}

// CookieSource supplies browser cookies for a URL.
type CookieSource func(ctx context.Context, u *url.URL) []*http.Cookie

// Options wires a Pipeline.
type Options struct {
	Client      *http.Client
	Timeout     time.Duration
	MaxBytes    int64
	JPEGQuality int
	UserAgent   string
	Header      http.Header
	Cookies     CookieSource
	Sites       *SiteConfigStore
	Cache       *DiskCache
	Notifier    Notifier
	Saver       Saver
	Logger      zerolog.Logger
}

// Pipeline converts picked images.
type Pipeline struct {
	opts   Options
	client *http.Client
	logger zerolog.Logger
}

// New builds a Pipeline. A nil Client gets a logging default client.
func New(opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	client := opts.Client
	if client == nil {
		client = NewClient(opts.Logger)
	}
	return &Pipeline{opts: opts, client: client, logger: opts.Logger}
}

// Client returns the HTTP client used for fetches.
func (p *Pipeline) Client() *http.Client { return p.client }

// Run converts req and saves the outcome once. It returns the saved
// location.
func (p *Pipeline) Run(ctx context.Context, req Request) (string, error) {
	res := p.Convert(ctx, req)
	if res.Err != nil {
		return "", res.Err
	}
	if p.opts.Saver == nil {
		return "", errors.New("convert: no saver configured")
	}
	where, err := p.opts.Saver.Save(ctx, *res.Download)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", res.Download.Filename, err)
	}
	p.logger.Info().
		Str("file", where).
		Str("format", string(req.Format)).
		Bool("fallback", res.Fallback).
		Msg("saved image")
	return where, nil
}

// Convert produces the download for req without saving it.
func (p *Pipeline) Convert(ctx context.Context, req Request) Result {
	if req.Format == FormatSVG {
		if !strings.HasSuffix(req.SourceURL, ".svg") {
			p.logger.Warn().Str("url", req.SourceURL).Msg("svg requested for non-svg source")
			p.alert(ctx, svgUnsupportedMessage)
			return Result{Err: ErrUnsupportedSVG}
		}
		return Result{Download: &Download{
			Filename: convertedFilename(FormatSVG),
			MIME:     FormatSVG.MIME(),
			Href:     req.SourceURL,
			PageURL:  req.PageURL,
		}}
	}

	dl, raw, err := p.convertRaster(ctx, req)
	if err == nil {
		return Result{Download: dl}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.logger.Info().Str("url", req.SourceURL).Msg("conversion cancelled")
		return Result{Err: fmt.Errorf("convert %s: %w", req.SourceURL, ctxErr)}
	}
	p.logger.Warn().Err(err).Str("url", req.SourceURL).Str("format", string(req.Format)).Msg("conversion failed, falling back to original")
	p.warn(ctx, fallbackMessage)
	fb := &Download{
		Filename: "download." + fallbackExtension(req.SourceURL),
		Href:     req.SourceURL,
		PageURL:  req.PageURL,
	}
	// Keep the fetched original when only decoding failed.
	if raw != nil {
		fb.Data = raw
		fb.MIME = http.DetectContentType(raw)
	}
	return Result{Download: fb, Fallback: true}
}

// convertRaster returns the fetched bytes alongside any error raised
// after the fetch succeeded.
func (p *Pipeline) convertRaster(ctx context.Context, req Request) (*Download, []byte, error) {
	cacheable := !strings.HasPrefix(req.SourceURL, "data:")
	if cacheable {
		if data, ok := p.opts.Cache.Get(req.Format, p.opts.JPEGQuality, req.SourceURL); ok {
			p.logger.Debug().Str("url", req.SourceURL).Msg("IMG cache hit")
			return &Download{Filename: convertedFilename(req.Format), Data: data, MIME: req.Format.MIME()}, nil, nil
		}
	}

	raw, err := p.fetch(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	img, srcFormat, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		p.logger.Debug().Str("head", hexBlock(raw, 0, 32)).Msg("IMG undecodable payload")
		return nil, raw, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	surface := rasterize(img, req.Format)
	data, err := encodeImage(surface, req.Format, p.opts.JPEGQuality)
	if err != nil {
		return nil, raw, fmt.Errorf("encode %s: %w", req.Format, err)
	}
	b := surface.Bounds()
	p.logger.Debug().
		Str("from", srcFormat).
		Str("to", string(req.Format)).
		Int("w", b.Dx()).
		Int("h", b.Dy()).
		Int("bytes", len(data)).
		Msg("IMG converted")
	if cacheable {
		p.opts.Cache.Put(req.Format, p.opts.JPEGQuality, req.SourceURL, data)
	}
	return &Download{Filename: convertedFilename(req.Format), Data: data, MIME: req.Format.MIME()}, raw, nil
}

// fetch reads the source bytes. data: URIs are decoded in place.
func (p *Pipeline) fetch(ctx context.Context, req Request) ([]byte, error) {
	src := req.SourceURL
	if strings.HasPrefix(src, "data:") {
		b, err := decodeDataURI(src)
		if err != nil {
			return nil, &FetchError{URL: "data:", Err: err}
		}
		return b, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	httpReq, err := p.NewHTTPRequest(ctx, src, req.PageURL)
	if err != nil {
		return nil, &FetchError{URL: src, Err: err}
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: src, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: src, StatusCode: resp.StatusCode}
	}
	raw, err := io.ReadAll(io.LimitReader(httpbody.Decode(resp), p.opts.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: src, Err: err}
	}
	if int64(len(raw)) > p.opts.MaxBytes {
		return nil, &FetchError{URL: src, Err: fmt.Errorf("body exceeds %d bytes", p.opts.MaxBytes)}
	}
	if len(raw) == 0 {
		return nil, &FetchError{URL: src, Err: errors.New("empty body")}
	}
	return raw, nil
}

// NewHTTPRequest builds the GET used to fetch src as seen from pageURL:
// configured and per-site headers, Referer, and browser cookies when src
// shares pageURL's origin.
func (p *Pipeline) NewHTTPRequest(ctx context.Context, src, pageURL string) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	r.Header = cloneHeader(p.opts.Header)
	r.Header.Set("Accept", acceptImages)
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", p.opts.UserAgent)
	}
	if pageURL != "" {
		r.Header.Set("Referer", pageURL)
	}
	if site := p.opts.Sites.Find(src); site != nil {
		for k, v := range site.Headers {
			r.Header.Set(k, v)
		}
	}
	// Cross-origin fetches go without credentials.
	if p.opts.Cookies != nil && sameOrigin(src, pageURL) {
		for _, c := range p.opts.Cookies(ctx, r.URL) {
			r.AddCookie(c)
		}
	}
	return r, nil
}

func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme != "" && strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

func (p *Pipeline) alert(ctx context.Context, msg string) {
	if p.opts.Notifier == nil {
		return
	}
	if err := p.opts.Notifier.Alert(ctx, msg); err != nil {
		p.logger.Debug().Err(err).Msg("alert")
	}
}

func (p *Pipeline) warn(ctx context.Context, msg string) {
	if p.opts.Notifier == nil {
		return
	}
	if err := p.opts.Notifier.Warn(ctx, msg); err != nil {
		p.logger.Debug().Err(err).Msg("warn")
	}
}
