package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"imgpick/convert"
	"imgpick/internal/browser"
	"imgpick/internal/config"
	"imgpick/internal/logging"
	"imgpick/internal/notify"
	"imgpick/internal/picker"
)

var (
	configPath string
	remoteURL  string
	headless   bool
	format     string
	outDir     string
	dialogs    string
	highlight  string
	isolation  string
	timeout    time.Duration
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "imgpick [url]",
	Short: "Pick an image on a web page and save it as PNG, JPEG or SVG",
	Long: `imgpick opens a Chrome tab (or attaches to a running browser), outlines
the image under the pointer and saves the clicked image in the chosen
format. Press Escape or the banner's Cancel button to stop without saving.

Settings come from IMGPICK_* environment variables, then the optional
--config YAML file, then flags.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMain,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file")
	f.StringVar(&remoteURL, "remote", "", "attach to a running browser (ws:// or http://host:port) instead of launching one")
	f.BoolVar(&headless, "headless", false, "launch Chrome headless")
	f.StringVar(&format, "format", "", "output format (png, jpeg, svg); skips the format menu")
	f.StringVar(&outDir, "out", "", "directory to save into")
	f.StringVar(&dialogs, "dialogs", "", "prompt style: native or terminal")
	f.StringVar(&highlight, "highlight", "", "hover highlight: live or off")
	f.StringVar(&isolation, "isolation", "", "banner style isolation: shadow or none")
	f.DurationVar(&timeout, "timeout", 0, "image fetch timeout")
	f.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imgpick:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath, cfg); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", configPath, err)
		}
	}
	flags := cmd.Flags()
	if flags.Changed("remote") {
		cfg.Browser.Remote = remoteURL
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if flags.Changed("format") {
		cfg.Picker.Format = format
	}
	if flags.Changed("out") {
		cfg.Convert.OutDir = outDir
	}
	if flags.Changed("dialogs") {
		cfg.Picker.Dialogs = dialogs
	}
	if flags.Changed("highlight") {
		cfg.Picker.Highlight = highlight
	}
	if flags.Changed("isolation") {
		cfg.Picker.Isolation = isolation
	}
	if flags.Changed("timeout") && timeout > 0 {
		cfg.Convert.Timeout = timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func runMain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel, nil)

	var preset convert.Format
	if cfg.Picker.Format != "" {
		if preset, err = convert.ParseFormat(cfg.Picker.Format); err != nil {
			return err
		}
	}
	mode, err := picker.ParseHighlightMode(cfg.Picker.Highlight)
	if err != nil {
		return err
	}
	iso, err := browser.ParseIsolation(cfg.Picker.Isolation)
	if err != nil {
		return err
	}
	ui, err := notify.New(cfg.Picker.Dialogs, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := browser.Start(ctx, browser.Options{
		RemoteURL:    cfg.Browser.Remote,
		Headless:     cfg.Browser.Headless,
		ExecPath:     cfg.Browser.ExecPath,
		UserDataDir:  cfg.Browser.UserDataDir,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	var target string
	if len(args) > 0 {
		target = args[0]
	}
	tab, err := b.Open(ctx, target, browser.TabOptions{
		Isolation:    iso,
		OutlineColor: cfg.Picker.OutlineColor,
		FillColor:    cfg.Picker.FillColor,
	})
	if err != nil {
		return err
	}
	defer tab.Close()

	pipeline, err := newPipeline(cfg, tab, ui, logger)
	if err != nil {
		return err
	}

	p := picker.New(picker.Options{
		Host:        tab,
		Chooser:     ui,
		Converter:   pipeline,
		Format:      preset,
		Highlight:   mode,
		SnapshotTTL: cfg.Picker.SnapshotTTL,
		Logger:      logger,
	})
	logger.Info().Msg("hover an image and click it; press Escape to cancel")
	out, err := p.Run(ctx)
	switch {
	case errors.Is(err, picker.ErrCancelled), errors.Is(err, context.Canceled):
		logger.Info().Msg("cancelled, nothing saved")
		return nil
	case err != nil:
		return err
	}
	logger.Info().
		Str("src", out.SourceURL).
		Str("page", out.PageURL).
		Str("format", string(out.Format)).
		Str("saved", out.Saved).
		Msg("picked")
	if out.Saved != "" {
		fmt.Println(out.Saved)
	}
	return nil
}

func newPipeline(cfg config.Config, tab *browser.Tab, ui notify.UI, logger zerolog.Logger) (*convert.Pipeline, error) {
	client := convert.NewClient(logger)
	saver, err := convert.NewFileSaver(cfg.Convert.OutDir, client, logger)
	if err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	var cache *convert.DiskCache
	if cfg.Convert.CacheDir != "" {
		if cache, err = convert.NewDiskCache(cfg.Convert.CacheDir, cfg.Convert.CacheMaxMB); err != nil {
			return nil, fmt.Errorf("cache dir: %w", err)
		}
	}
	pipeline := convert.New(convert.Options{
		Client:      client,
		Timeout:     cfg.Convert.Timeout,
		MaxBytes:    cfg.Convert.MaxBytes,
		JPEGQuality: cfg.Convert.JPEGQuality,
		UserAgent:   cfg.Convert.UserAgent,
		Cookies:     tab.Cookies,
		Sites:       convert.NewSiteConfigStore(cfg.Convert.SitesDir),
		Cache:       cache,
		Notifier:    ui,
		Saver:       saver,
		Logger:      logger,
	})
	saver.NewRequest = pipeline.NewHTTPRequest
	saver.Timeout = cfg.Convert.Timeout
	return pipeline, nil
}
