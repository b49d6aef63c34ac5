package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("IMGPICK_REMOTE", "ws://127.0.0.1:9222/devtools/browser/x")
	t.Setenv("IMGPICK_HEADLESS", "true")
	t.Setenv("IMGPICK_FORMAT", "jpeg")
	t.Setenv("IMGPICK_TIMEOUT", "12")
	t.Setenv("IMGPICK_JPEG_QUALITY", "150")
	t.Setenv("IMGPICK_CACHE_DIR", "/tmp/imgpick-cache")

	cfg := DefaultConfig()
	if cfg.Browser.Remote != "ws://127.0.0.1:9222/devtools/browser/x" || !cfg.Browser.Headless {
		t.Fatalf("browser config = %+v", cfg.Browser)
	}
	if cfg.Picker.Format != "jpeg" || cfg.Picker.Highlight != "live" || cfg.Picker.Isolation != "shadow" {
		t.Fatalf("picker config = %+v", cfg.Picker)
	}
	if cfg.Convert.Timeout != 12*time.Second {
		t.Fatalf("timeout = %v", cfg.Convert.Timeout)
	}
	if cfg.Convert.JPEGQuality != defaultJPEGQuality {
		t.Fatalf("out-of-range quality kept: %d", cfg.Convert.JPEGQuality)
	}
	if cfg.Convert.CacheMaxMB != defaultCacheMaxMB {
		t.Fatalf("cache size = %d", cfg.Convert.CacheMaxMB)
	}
}

func TestLoadFileOverlaysBase(t *testing.T) {
	t.Setenv("IMGPICK_OUT", "")
	base := DefaultConfig()
	base.Browser.Remote = "http://localhost:9222"

	path := filepath.Join(t.TempDir(), "imgpick.yaml")
	body := `
log_level: debug
picker:
  highlight: "off"
  isolation: none
  snapshot_ttl: 500ms
convert:
  out_dir: /tmp/pics
  jpeg_quality: 80
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path, base)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	want := base
	want.LogLevel = "debug"
	want.Picker.Highlight = "off"
	want.Picker.Isolation = "none"
	want.Picker.SnapshotTTL = 500 * time.Millisecond
	want.Convert.OutDir = "/tmp/pics"
	want.Convert.JPEGQuality = 80
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
}

func TestLoadFileErrors(t *testing.T) {
	base := DefaultConfig()
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), base); err == nil {
		t.Fatal("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("picker: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path, base)
	if err == nil {
		t.Fatal("malformed yaml accepted")
	}
	if diff := cmp.Diff(base, got); diff != "" {
		t.Fatalf("base modified on error (-want +got):\n%s", diff)
	}
}
