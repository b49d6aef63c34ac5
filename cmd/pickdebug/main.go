// Command pickdebug runs point resolution against a static HTML document
// and prints what a click at x,y would pick.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"imgpick/convert"
	"imgpick/internal/logging"
	"imgpick/internal/notify"
	"imgpick/page"
)

var (
	width    int
	height   int
	format   string
	outDir   string
	logLevel string
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pickdebug <file|url> <x> <y>",
	Short: "Show how a point on a static page resolves to an image",
	Long: `pickdebug lays out a static HTML document from its CSS boxes and reports
the element under x,y, the nearest image-bearing element, the spider
result and the final resolved image URL. With --format the resolved
image is also converted and saved.`,
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.IntVar(&width, "width", page.DefaultViewport.Width, "viewport width")
	f.IntVar(&height, "height", page.DefaultViewport.Height, "viewport height")
	f.StringVar(&format, "format", "", "convert the resolved image to png, jpeg or svg")
	f.StringVar(&outDir, "out", ".", "directory for --format output")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "limit for each image fetch")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pickdebug:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	target := args[0]
	x, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("x: %w", err)
	}
	y, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("y: %w", err)
	}
	logger := logging.Init(logLevel, nil)
	ctx := cmd.Context()

	client := convert.NewClient(logger)
	doc, err := page.Load(ctx, target, &page.LoadOptions{
		Viewport: page.Viewport{Width: width, Height: height},
		Client:   client,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "hit stack at %g,%g:\n", x, y)
	for _, n := range doc.ElementsAt(x, y) {
		fmt.Fprintf(w, "  %s box=%+v image=%t\n", n, n.Box, page.HasImage(n))
	}
	fmt.Fprintf(w, "topmost:  %s\n", describe(page.TopmostAt(doc, x, y)))
	cand := page.Classify(doc, x, y)
	fmt.Fprintf(w, "classify: %s\n", describe(cand))
	if cand != nil {
		fmt.Fprintf(w, "spider:   %q\n", page.Spider(cand))
	}
	res, err := page.Resolve(doc, x, y)
	if err != nil {
		fmt.Fprintf(w, "resolve:  %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "resolve:  %s -> %s\n", res.Node, res.SourceURL())

	if format == "" {
		return nil
	}
	f, err := convert.ParseFormat(format)
	if err != nil {
		return err
	}
	var pageURL string
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		pageURL = target
	}
	req, err := convert.NewRequest(res.SourceURL(), f, pageURL)
	if err != nil {
		return err
	}
	saver, err := convert.NewFileSaver(outDir, client, logger)
	if err != nil {
		return err
	}
	pipeline := convert.New(convert.Options{
		Client:   client,
		Timeout:  timeout,
		Notifier: notify.NewTerminal(nil, nil),
		Saver:    saver,
		Logger:   logger,
	})
	saver.NewRequest = pipeline.NewHTTPRequest
	saver.Timeout = timeout
	saved, err := pipeline.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "saved:    %s\n", saved)
	return nil
}

func describe(n *page.Node) string {
	if n == nil {
		return "<none>"
	}
	if u := page.ImageURL(n); u != "" {
		return n.String() + " " + u
	}
	return n.String()
}
