// Package picker runs a single image-picking session against a host page:
// live hover highlight, click resolution, format choice and conversion.
package picker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"imgpick/convert"
	"imgpick/page"
)

// State is the session's position in the picking flow.
type State int

const (
	Idle State = iota
	Hovering
	Resolved
	Converting
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Hovering:
		return "hovering"
	case Resolved:
		return "resolved"
	case Converting:
		return "converting"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventKind identifies a host page event.
type EventKind int

const (
	EventMove EventKind = iota + 1
	EventClick
	EventKey
	// EventCancel is the banner's Cancel button.
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventMove:
		return "move"
	case EventClick:
		return "click"
	case EventKey:
		return "key"
	case EventCancel:
		return "cancel"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a pointer or keyboard event in viewport coordinates.
type Event struct {
	Kind EventKind
	X, Y float64
	Key  string
}

func (e Event) aborts() bool {
	if e.Kind == EventCancel {
		return true
	}
	return e.Kind == EventKey && (e.Key == "Escape" || strings.EqualFold(e.Key, "esc"))
}

// Host is the page the session runs against. Everything Attach and
// Highlight inject must be gone after Teardown.
type Host interface {
	Snapshot(ctx context.Context) (*page.Document, error)
	// Attach installs move, click and key listeners plus the instruction
	// banner, and streams their events.
	Attach(ctx context.Context) (<-chan Event, error)
	// DetachPointer removes the move and click listeners only.
	DetachPointer(ctx context.Context) error
	Highlight(ctx context.Context, r page.Rect) error
	ClearHighlight(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Chooser asks the user for an output format. ok is false when the user
// dismissed the choice.
type Chooser interface {
	ChooseFormat(ctx context.Context, sourceURL string) (f convert.Format, ok bool, err error)
}

// Converter converts and saves the picked image once.
type Converter interface {
	Run(ctx context.Context, req convert.Request) (string, error)
}

// HighlightMode selects whether hovering paints an outline.
type HighlightMode string

const (
	HighlightLive HighlightMode = "live"
	HighlightOff  HighlightMode = "off"
)

// ParseHighlightMode accepts "live" or "off"; empty means live.
func ParseHighlightMode(s string) (HighlightMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "live", "on":
		return HighlightLive, nil
	case "off", "none":
		return HighlightOff, nil
	}
	return "", fmt.Errorf("unknown highlight mode %q", s)
}

var (
	// ErrSessionActive is returned when a Picker already runs a session.
	ErrSessionActive = errors.New("picking session already active")
	// ErrCancelled reports that the user aborted the session.
	ErrCancelled = errors.New("picking cancelled")
)
