package convert

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type loggingTransport struct {
	logger zerolog.Logger
	next   http.RoundTripper
}

// NewClient returns an HTTP client whose requests are logged at debug
// level.
func NewClient(logger zerolog.Logger) *http.Client {
	return &http.Client{Transport: withLogging(logger, http.DefaultTransport)}
}

func withLogging(logger zerolog.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{logger: logger, next: next}
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("referer", r.Header.Get("Referer")).
		Msg("REQ")
	resp, err := t.next.RoundTrip(r)
	if err != nil {
		t.logger.Debug().Err(err).Str("url", r.URL.String()).Dur("took", time.Since(start)).Msg("RESP error")
		return nil, err
	}
	t.logger.Debug().
		Int("status", resp.StatusCode).
		Str("url", r.URL.String()).
		Str("type", resp.Header.Get("Content-Type")).
		Int64("length", resp.ContentLength).
		Dur("took", time.Since(start)).
		Msg("RESP")
	return resp, nil
}

func cloneHeader(h http.Header) http.Header {
	out := http.Header{}
	for k, vs := range h {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}
