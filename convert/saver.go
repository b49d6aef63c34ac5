package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imgpick/internal/httpbody"
)

const maxNameAttempts = 1000

// FileSaver writes downloads into Dir. Existing files are never
// overwritten; a " (n)" suffix is added before the extension instead.
type FileSaver struct {
	Dir    string
	Client *http.Client
	// NewRequest builds the GET for a remote Href. Set it to
	// Pipeline.NewHTTPRequest so the copy carries the same Referer,
	// site headers and cookies as the conversion fetch. Nil sends a
	// bare request.
	NewRequest func(ctx context.Context, href, pageURL string) (*http.Request, error)
	// Timeout bounds a remote copy. Zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewFileSaver creates dir if needed.
func NewFileSaver(dir string, client *http.Client, logger zerolog.Logger) (*FileSaver, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &FileSaver{Dir: dir, Client: client, Logger: logger}, nil
}

// Save writes d and returns the path written.
func (s *FileSaver) Save(ctx context.Context, d Download) (string, error) {
	name := filepath.Base(d.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "download"
	}
	f, path, err := s.create(name)
	if err != nil {
		return "", err
	}
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(path)
		}
	}()
	defer f.Close()

	switch {
	case d.Data != nil:
		_, err = f.Write(d.Data)
	case strings.HasPrefix(d.Href, "data:"):
		var b []byte
		if b, err = decodeDataURI(d.Href); err == nil {
			_, err = f.Write(b)
		}
	case d.Href != "":
		err = s.copyRemote(ctx, f, d.Href, d.PageURL)
	default:
		err = errors.New("download has neither data nor href")
	}
	if err != nil {
		return "", err
	}
	if err = f.Sync(); err != nil {
		return "", err
	}
	ok = true
	s.Logger.Debug().Str("path", path).Msg("SAVE written")
	return path, nil
}

func (s *FileSaver) copyRemote(ctx context.Context, w io.Writer, href, pageURL string) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	var (
		req *http.Request
		err error
	)
	if s.NewRequest != nil {
		req, err = s.NewRequest(ctx, href, pageURL)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	}
	if err != nil {
		return &FetchError{URL: href, Err: err}
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &FetchError{URL: href, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{URL: href, StatusCode: resp.StatusCode}
	}
	if _, err = io.Copy(w, httpbody.Decode(resp)); err != nil {
		return &FetchError{URL: href, Err: err}
	}
	return nil
}

// create opens a fresh file for name inside Dir.
func (s *FileSaver) create(name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(s.Dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s in %s", name, s.Dir)
}
