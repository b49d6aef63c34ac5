package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"imgpick/convert"
)

// Terminal prompts on a line-oriented reader and writer.
type Terminal struct {
	out io.Writer

	mu    sync.Mutex
	lines chan string
	start sync.Once
	in    io.Reader
}

// NewTerminal reads from in and writes to out; nil means stdin and stderr.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	return &Terminal{in: in, out: out, lines: make(chan string)}
}

// readLoop feeds input lines to t.lines. A single reader goroutine keeps
// a cancelled prompt from swallowing the next answer.
func (t *Terminal) readLoop() {
	sc := bufio.NewScanner(t.in)
	for sc.Scan() {
		t.lines <- sc.Text()
	}
	close(t.lines)
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	t.start.Do(func() { go t.readLoop() })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

// Alert prints msg and waits for Enter.
func (t *Terminal) Alert(ctx context.Context, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "! %s\n  press Enter to continue ", msg)
	_, err := t.readLine(ctx)
	fmt.Fprintln(t.out)
	if err == io.EOF {
		return nil
	}
	return err
}

// Warn prints msg without waiting.
func (t *Terminal) Warn(_ context.Context, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "warning: %s\n", msg)
	return err
}

// ChooseFormat prints a numbered menu. An empty answer, "c" or end of
// input cancels; unknown answers are asked again.
func (t *Terminal) ChooseFormat(ctx context.Context, sourceURL string) (convert.Format, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "Image: %s\n", sourceURL)
	for i, f := range convert.Formats {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, strings.ToUpper(string(f)))
	}
	fmt.Fprintln(t.out, "  c) Cancel")
	for {
		fmt.Fprint(t.out, "Format: ")
		answer, err := t.readLine(ctx)
		if err == io.EOF {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		switch strings.ToLower(answer) {
		case "", "c", "cancel", "q":
			return "", false, nil
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(convert.Formats) {
			return convert.Formats[n-1], true, nil
		}
		if f, err := convert.ParseFormat(answer); err == nil {
			return f, true, nil
		}
		fmt.Fprintf(t.out, "unknown choice %q\n", answer)
	}
}
