package picker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imgpick/convert"
	"imgpick/page"
)

const (
	defaultSnapshotTTL     = 250 * time.Millisecond
	defaultTeardownTimeout = 5 * time.Second
)

// Options configures a Session.
type Options struct {
	Host      Host
	Chooser   Chooser
	Converter Converter
	// Format skips the chooser when set.
	Format    convert.Format
	Highlight HighlightMode
	// SnapshotTTL bounds how stale the page model used for hover may be.
	// Clicks always take a fresh snapshot.
	SnapshotTTL     time.Duration
	TeardownTimeout time.Duration
	Logger          zerolog.Logger
}

// Outcome describes a finished session.
type Outcome struct {
	SourceURL string
	PageURL   string
	Format    convert.Format
	// Saved is where the download went, empty when nothing was saved.
	Saved string
}

// Session is one single-shot picking interaction. It owns every listener
// and overlay it installs on the host and removes them when it reaches Done.
type Session struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State

	cancelOnce sync.Once
	cancelled  chan struct{}

	held        *Event
	doc         *page.Document
	docTaken    time.Time
	highlighted *page.Rect
}

// NewSession returns an Idle session.
func NewSession(opts Options) *Session {
	if opts.Highlight == "" {
		opts.Highlight = HighlightLive
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = defaultSnapshotTTL
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = defaultTeardownTimeout
	}
	return &Session{
		opts:      opts,
		logger:    opts.Logger,
		now:       time.Now,
		cancelled: make(chan struct{}),
	}
}

// State returns the current state. Safe for concurrent use.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Debug().Stringer("from", prev).Stringer("to", st).Msg("PICK state")
	}
}

// Cancel aborts the session from any state, including an in-flight
// conversion. Safe to call more than once and from any goroutine.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelled) })
}

// Run drives the session to Done. It returns ErrCancelled when the user
// aborts, and the converter's error when conversion could not save.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	if s.State() != Idle {
		return Outcome{}, errors.New("picker: session already used")
	}
	if s.opts.Host == nil || s.opts.Converter == nil {
		return Outcome{}, errors.New("picker: host and converter are required")
	}
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.cancelled:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer s.finish(parent)

	events, err := s.opts.Host.Attach(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("attach listeners: %w", err)
	}
	s.logger.Info().Msg("click on an image, Esc to cancel")

	src, err := s.pick(ctx, events)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{SourceURL: src}
	if s.doc != nil {
		out.PageURL = s.doc.URL
	}

	format, err := s.chooseFormat(ctx, events, src)
	if err != nil {
		return out, err
	}
	out.Format = format

	req, err := convert.NewRequest(src, format, out.PageURL)
	if err != nil {
		return out, err
	}
	s.setState(Converting)
	saved, err := await(ctx, s, events, func(ctx context.Context) (string, error) {
		return s.opts.Converter.Run(ctx, req)
	})
	out.Saved = saved
	return out, err
}

// finish enters Done and removes everything injected into the host. It
// runs on every exit path, with a context that outlives cancellation.
func (s *Session) finish(parent context.Context) {
	s.setState(Done)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.opts.TeardownTimeout)
	defer cancel()
	if s.highlighted != nil {
		if err := s.opts.Host.ClearHighlight(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("clear highlight")
		}
		s.highlighted = nil
	}
	if err := s.opts.Host.Teardown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("teardown")
	}
}

// pick handles pointer events until a click resolves to an image URL.
func (s *Session) pick(ctx context.Context, events <-chan Event) (string, error) {
	for {
		ev, err := s.next(ctx, events)
		if err != nil {
			return "", err
		}
		if ev.aborts() {
			s.logger.Info().Stringer("event", ev.Kind).Msg("picking cancelled")
			return "", ErrCancelled
		}
		switch ev.Kind {
		case EventMove:
			s.hover(ctx, ev.X, ev.Y)
		case EventClick:
			src, ok := s.click(ctx, ev.X, ev.Y)
			if !ok {
				continue
			}
			s.setState(Resolved)
			if err := s.opts.Host.DetachPointer(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("detach pointer listeners")
			}
			s.clearHighlight(ctx)
			return src, nil
		}
	}
}

// next returns the next event to handle. Runs of move events collapse to
// the latest one.
func (s *Session) next(ctx context.Context, events <-chan Event) (Event, error) {
	var ev Event
	if s.held != nil {
		ev, s.held = *s.held, nil
	} else {
		select {
		case <-ctx.Done():
			return Event{}, ErrCancelled
		case e, ok := <-events:
			if !ok {
				return Event{}, fmt.Errorf("%w: host closed", ErrCancelled)
			}
			ev = e
		}
	}
	for ev.Kind == EventMove {
		select {
		case e, ok := <-events:
			if !ok {
				return ev, nil
			}
			if e.Kind != EventMove {
				s.held = &e
				return ev, nil
			}
			ev = e
		default:
			return ev, nil
		}
	}
	return ev, nil
}

func (s *Session) snapshot(ctx context.Context, fresh bool) (*page.Document, error) {
	if !fresh && s.doc != nil && s.now().Sub(s.docTaken) < s.opts.SnapshotTTL {
		return s.doc, nil
	}
	doc, err := s.opts.Host.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.doc, s.docTaken = doc, s.now()
	return doc, nil
}

func (s *Session) hover(ctx context.Context, x, y float64) {
	doc, err := s.snapshot(ctx, false)
	if err != nil {
		s.logger.Debug().Err(err).Msg("hover snapshot")
		return
	}
	n := page.Classify(doc, x, y)
	if n == nil {
		s.clearHighlight(ctx)
		s.setState(Idle)
		return
	}
	s.setState(Hovering)
	if s.opts.Highlight == HighlightOff {
		return
	}
	if s.highlighted != nil && *s.highlighted == n.Box {
		return
	}
	s.clearHighlight(ctx)
	if err := s.opts.Host.Highlight(ctx, n.Box); err != nil {
		s.logger.Debug().Err(err).Str("node", n.String()).Msg("highlight")
		return
	}
	box := n.Box
	s.highlighted = &box
}

func (s *Session) clearHighlight(ctx context.Context) {
	if s.highlighted == nil {
		return
	}
	if err := s.opts.Host.ClearHighlight(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("clear highlight")
	}
	s.highlighted = nil
}

// click resolves a click. A miss leaves the session Idle with its
// listeners in place.
func (s *Session) click(ctx context.Context, x, y float64) (string, bool) {
	doc, err := s.snapshot(ctx, true)
	if err != nil {
		s.logger.Warn().Err(err).Msg("click snapshot")
		return "", false
	}
	cand, err := page.Resolve(doc, x, y)
	if err != nil {
		s.logger.Info().Err(err).Float64("x", x).Float64("y", y).Msg("click ignored")
		s.clearHighlight(ctx)
		s.setState(Idle)
		return "", false
	}
	s.logger.Info().
		Str("node", cand.Node.String()).
		Str("src", cand.SourceURL()).
		Msg("image resolved")
	return cand.SourceURL(), true
}

func (s *Session) chooseFormat(ctx context.Context, events <-chan Event, src string) (convert.Format, error) {
	if s.opts.Format != "" {
		return s.opts.Format, nil
	}
	if s.opts.Chooser == nil {
		return "", errors.New("picker: no format and no chooser")
	}
	return await(ctx, s, events, func(ctx context.Context) (convert.Format, error) {
		f, ok, err := s.opts.Chooser.ChooseFormat(ctx, src)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrCancelled
		}
		return f, nil
	})
}

// await runs fn while watching the host for Escape or Cancel, which
// cancel fn's context. Pointer events are ignored.
func await[T any](ctx context.Context, s *Session, events <-chan Event, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	aborted := false
	abort := func(why string) {
		if aborted {
			return
		}
		aborted = true
		s.logger.Info().Str("by", why).Stringer("state", s.State()).Msg("picking cancelled")
		cancel()
	}
	if s.held != nil {
		if s.held.aborts() {
			abort(s.held.Kind.String())
		}
		s.held = nil
	}

	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()
	for {
		select {
		case r := <-done:
			if aborted || (r.err != nil && ctx.Err() != nil) {
				var zero T
				return zero, ErrCancelled
			}
			return r.v, r.err
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.aborts() {
				abort(ev.Kind.String())
			}
		}
	}
}
