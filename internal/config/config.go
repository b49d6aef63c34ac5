// Package config holds imgpick settings: environment defaults, overlaid by
// an optional YAML file, overlaid by command-line flags.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSitesDir    = "config/sites"
	defaultTimeout     = 30 * time.Second
	defaultJPEGQuality = 92
	defaultSnapshotTTL = 250 * time.Millisecond
	defaultCacheMaxMB  = 64
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Browser  BrowserConfig `yaml:"browser"`
	Picker   PickerConfig  `yaml:"picker"`
	Convert  ConvertConfig `yaml:"convert"`
}

// BrowserConfig controls how Chrome is reached.
type BrowserConfig struct {
	Remote       string `yaml:"remote"`
	Headless     bool   `yaml:"headless"`
	ExecPath     string `yaml:"exec_path"`
	UserDataDir  string `yaml:"user_data_dir"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
}

// PickerConfig controls the picking session and its UI.
type PickerConfig struct {
	// Format, when set, skips the format menu.
	Format       string        `yaml:"format"`
	Highlight    string        `yaml:"highlight"` // live | off
	Isolation    string        `yaml:"isolation"` // shadow | none
	Dialogs      string        `yaml:"dialogs"`   // native | terminal
	OutlineColor string        `yaml:"outline_color"`
	FillColor    string        `yaml:"fill_color"`
	SnapshotTTL  time.Duration `yaml:"snapshot_ttl"`
}

// ConvertConfig controls fetching, conversion and saving.
type ConvertConfig struct {
	OutDir      string        `yaml:"out_dir"`
	Timeout     time.Duration `yaml:"timeout"`
	JPEGQuality int           `yaml:"jpeg_quality"`
	MaxBytes    int64         `yaml:"max_bytes"`
	UserAgent   string        `yaml:"user_agent"`
	SitesDir    string        `yaml:"sites_dir"`
	CacheDir    string        `yaml:"cache_dir"`
	CacheMaxMB  int           `yaml:"cache_max_mb"`
}

// DefaultConfig populates configuration from IMGPICK_* environment
// variables.
func DefaultConfig() Config {
	cfg := Config{
		LogLevel: env("IMGPICK_LOG_LEVEL"),
		Browser: BrowserConfig{
			Remote:      env("IMGPICK_REMOTE"),
			Headless:    envBool("IMGPICK_HEADLESS"),
			ExecPath:    env("IMGPICK_CHROME"),
			UserDataDir: env("IMGPICK_PROFILE_DIR"),
		},
		Picker: PickerConfig{
			Format:    env("IMGPICK_FORMAT"),
			Highlight: env("IMGPICK_HIGHLIGHT"),
			Isolation: env("IMGPICK_ISOLATION"),
			Dialogs:   env("IMGPICK_DIALOGS"),
		},
		Convert: ConvertConfig{
			OutDir:      env("IMGPICK_OUT"),
			Timeout:     envDuration("IMGPICK_TIMEOUT"),
			JPEGQuality: envInt("IMGPICK_JPEG_QUALITY"),
			UserAgent:   env("IMGPICK_USER_AGENT"),
			SitesDir:    env("IMGPICK_SITES_DIR"),
			CacheDir:    env("IMGPICK_CACHE_DIR"),
			CacheMaxMB:  envInt("IMGPICK_CACHE_MAX_MB"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadFile overlays the YAML file at path on base. Keys absent from the
// file keep base's values.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Picker.Highlight == "" {
		c.Picker.Highlight = "live"
	}
	if c.Picker.Isolation == "" {
		c.Picker.Isolation = "shadow"
	}
	if c.Picker.Dialogs == "" {
		c.Picker.Dialogs = "native"
	}
	if c.Picker.SnapshotTTL <= 0 {
		c.Picker.SnapshotTTL = defaultSnapshotTTL
	}
	if c.Convert.OutDir == "" {
		c.Convert.OutDir = "."
	}
	if c.Convert.Timeout <= 0 {
		c.Convert.Timeout = defaultTimeout
	}
	if c.Convert.JPEGQuality <= 0 || c.Convert.JPEGQuality > 100 {
		c.Convert.JPEGQuality = defaultJPEGQuality
	}
	if c.Convert.SitesDir == "" {
		c.Convert.SitesDir = defaultSitesDir
	}
	if c.Convert.CacheDir != "" && c.Convert.CacheMaxMB <= 0 {
		c.Convert.CacheMaxMB = defaultCacheMaxMB
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(env(key))
	return err == nil && v
}

func envInt(key string) int {
	v, err := strconv.Atoi(env(key))
	if err != nil {
		return 0
	}
	return v
}

func envDuration(key string) time.Duration {
	raw := env(key)
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
