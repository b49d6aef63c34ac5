// Package notify shows picker messages and asks for the output format,
// either with native dialogs or on the terminal.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog"

	"imgpick/convert"
)

const dialogTitle = "Image picker"

// UI is both the conversion notifier and the picker's format chooser.
type UI interface {
	Alert(ctx context.Context, msg string) error
	Warn(ctx context.Context, msg string) error
	ChooseFormat(ctx context.Context, sourceURL string) (convert.Format, bool, error)
}

// New returns the UI named by kind: "native" or "terminal".
func New(kind string, logger zerolog.Logger) (UI, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "native", "zenity":
		return &Dialogs{Title: dialogTitle, Logger: logger}, nil
	case "terminal", "tty":
		return NewTerminal(nil, nil), nil
	}
	return nil, fmt.Errorf("unknown dialogs mode %q", kind)
}

// Dialogs uses native message boxes and list dialogs.
type Dialogs struct {
	Title  string
	Logger zerolog.Logger
}

func (d *Dialogs) Alert(ctx context.Context, msg string) error {
	err := zenity.Error(msg, zenity.Title(d.Title), zenity.Context(ctx))
	if errors.Is(err, zenity.ErrCanceled) {
		return nil
	}
	return err
}

func (d *Dialogs) Warn(ctx context.Context, msg string) error {
	err := zenity.Warning(msg, zenity.Title(d.Title), zenity.Context(ctx))
	if errors.Is(err, zenity.ErrCanceled) {
		return nil
	}
	return err
}

// ChooseFormat shows the format menu. Closing it or pressing Cancel
// reports ok=false.
func (d *Dialogs) ChooseFormat(ctx context.Context, sourceURL string) (convert.Format, bool, error) {
	items := make([]string, len(convert.Formats))
	for i, f := range convert.Formats {
		items[i] = strings.ToUpper(string(f))
	}
	choice, err := zenity.List(
		"Select a format for\n"+sourceURL,
		items,
		zenity.Title(d.Title),
		zenity.Context(ctx),
		zenity.DefaultItems(items[0]),
		zenity.DisallowEmpty(),
		zenity.OKLabel("Download"),
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			d.Logger.Info().Msg("format selection cancelled")
			return "", false, nil
		}
		return "", false, err
	}
	f, err := convert.ParseFormat(choice)
	if err != nil {
		return "", false, err
	}
	return f, true, nil
}
