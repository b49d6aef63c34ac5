package convert

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSiteConfigStoreFind(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("example.com.json", `{"headers":{"Referer":"https://example.com/"}}`)
	write("img.example.com.json", `{"headers":{"X-Token":"img"}}`)
	write("broken.test.json", `{`)

	s := NewSiteConfigStore(dir)
	cases := []struct {
		target, header, want string
	}{
		{"https://img.example.com/a.png", "X-Token", "img"},
		{"https://cdn.eu.example.com/a.png", "Referer", "https://example.com/"},
		{"https://EXAMPLE.com./a.png", "Referer", "https://example.com/"},
		{"https://broken.test/a.png", "", ""},
		{"https://other.org/a.png", "", ""},
		{"not a url\x7f", "", ""},
	}
	for _, tc := range cases {
		cfg := s.Find(tc.target)
		if tc.header == "" {
			if cfg != nil {
				t.Errorf("Find(%q) = %+v, want nil", tc.target, cfg)
			}
			continue
		}
		if cfg == nil || cfg.Headers[tc.header] != tc.want {
			t.Errorf("Find(%q) = %+v, want %s=%s", tc.target, cfg, tc.header, tc.want)
		}
	}

	// Files are read once per store.
	if err := os.Remove(filepath.Join(dir, "example.com.json")); err != nil {
		t.Fatal(err)
	}
	if cfg := s.Find("https://cdn.eu.example.com/b.png"); cfg == nil {
		t.Fatal("memoized config lost after file removal")
	}
	if cfg := NewSiteConfigStore(dir).Find("https://cdn.eu.example.com/b.png"); cfg != nil {
		t.Fatalf("fresh store found removed file: %+v", cfg)
	}
	var nilStore *SiteConfigStore
	if nilStore.Find("https://img.example.com/a.png") != nil {
		t.Fatal("nil store returned a config")
	}
}
