package convert

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SiteConfig overrides request headers for image hosts that refuse plain
// fetches, e.g. hotlink-protected CDNs that want a specific Referer.
type SiteConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
}

// SiteConfigStore maps an image host to <dir>/<name>.json, where name is
// the host itself or its nearest parent domain with a file. Files are
// read once; later edits need a new store.
type SiteConfigStore struct {
	dir string

	mu    sync.Mutex
	files map[string]*SiteConfig // nil marks a name without a usable file
}

func NewSiteConfigStore(dir string) *SiteConfigStore {
	return &SiteConfigStore{dir: dir, files: map[string]*SiteConfig{}}
}

// Find returns the config for target's host, or nil.
func (s *SiteConfigStore) Find(target string) *SiteConfig {
	if s == nil || s.dir == "" {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}
	name := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")

	s.mu.Lock()
	defer s.mu.Unlock()
	for name != "" {
		cfg, seen := s.files[name]
		if !seen {
			cfg = readSiteConfig(filepath.Join(s.dir, name+".json"))
			s.files[name] = cfg
		}
		if cfg != nil {
			return cfg
		}
		_, name, _ = strings.Cut(name, ".")
	}
	return nil
}

func readSiteConfig(path string) *SiteConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	cfg := new(SiteConfig)
	if json.Unmarshal(data, cfg) != nil {
		return nil
	}
	return cfg
}
