package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imgpick/convert"
)

func TestTerminalChooseFormat(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   convert.Format
		wantOK bool
	}{
		{"by_number", "2\n", convert.FormatJPEG, true},
		{"by_name", "svg\n", convert.FormatSVG, true},
		{"jpg_alias", "JPG\n", convert.FormatJPEG, true},
		{"retry_after_junk", "7\nwebp\n1\n", convert.FormatPNG, true},
		{"cancel", "c\n", "", false},
		{"empty_line", "\n", "", false},
		{"eof", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tc.input), &out)
			got, ok, err := term.ChooseFormat(context.Background(), "https://cdn.example/a.png")
			if err != nil {
				t.Fatalf("ChooseFormat: %v", err)
			}
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("ChooseFormat = %q, %v; want %q, %v", got, ok, tc.want, tc.wantOK)
			}
			if !strings.Contains(out.String(), "https://cdn.example/a.png") || !strings.Contains(out.String(), "3) SVG") {
				t.Fatalf("menu output:\n%s", out.String())
			}
		})
	}
}

func TestTerminalChooseFormatCancelledContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	term := NewTerminal(pr, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok, err := term.ChooseFormat(ctx, "https://cdn.example/a.png")
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ChooseFormat = %v, %v; want deadline exceeded", ok, err)
	}
}

func TestTerminalMessages(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("\n"), &out)
	if err := term.Warn(context.Background(), "Failed to fetch image. Downloading original file instead."); err != nil {
		t.Fatalf("Warn: %v", err)
	}
	if err := term.Alert(context.Background(), "SVG conversion only supported for actual SVG images."); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if err := term.Alert(context.Background(), "second alert at end of input"); err != nil {
		t.Fatalf("Alert at EOF: %v", err)
	}
	for _, want := range []string{"warning: Failed to fetch image.", "! SVG conversion only supported"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestNewSelectsUI(t *testing.T) {
	if ui, err := New("terminal", zerolog.Nop()); err != nil {
		t.Fatalf("New(terminal): %v", err)
	} else if _, ok := ui.(*Terminal); !ok {
		t.Fatalf("New(terminal) = %T", ui)
	}
	if ui, err := New("", zerolog.Nop()); err != nil {
		t.Fatalf("New(\"\"): %v", err)
	} else if _, ok := ui.(*Dialogs); !ok {
		t.Fatalf("New(\"\") = %T", ui)
	}
	if _, err := New("popup", zerolog.Nop()); err == nil {
		t.Fatal("unknown mode accepted")
	}
}
