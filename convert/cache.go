package convert

import (
	"crypto/sha1"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DiskCache keeps converted payloads on disk, keyed by format, quality and
// source URL, and evicts the least recently used files beyond maxBytes.
type DiskCache struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex
	now      func() time.Time
}

// NewDiskCache creates dir if needed. maxMB <= 0 disables eviction.
func NewDiskCache(dir string, maxMB int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{
		dir:      dir,
		maxBytes: int64(maxMB) * 1024 * 1024,
		now:      time.Now,
	}, nil
}

func (c *DiskCache) key(format Format, quality int, url string) (string, string) {
	h := sha1.Sum([]byte(string(format) + "|q=" + strconv.Itoa(quality) + "|" + url))
	name := hex.EncodeToString(h[:])
	dir := filepath.Join(c.dir, name[0:1], name[1:2])
	return dir, filepath.Join(dir, name+".bin")
}

// Get returns a cached payload and refreshes its access time.
func (c *DiskCache) Get(format Format, quality int, url string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	_, path := c.key(format, quality, url)
	b, err := os.ReadFile(path)
	if err != nil || len(b) == 0 {
		return nil, false
	}
	now := c.now()
	_ = os.Chtimes(path, now, now)
	return b, true
}

// Put stores data, then prunes the cache back under its size cap.
func (c *DiskCache) Put(format Format, quality int, url string, data []byte) {
	if c == nil || len(data) == 0 {
		return
	}
	dir, path := c.key(format, quality, url)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return
	}
	now := c.now()
	_ = os.Chtimes(path, now, now)
	c.prune()
}

func (c *DiskCache) prune() {
	if c.maxBytes <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	type entry struct {
		p  string
		sz int64
		mt time.Time
	}
	var files []entry
	var total int64
	filepath.WalkDir(c.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".bin") {
			return nil
		}
		if info, e := d.Info(); e == nil {
			files = append(files, entry{p, info.Size(), info.ModTime()})
			total += info.Size()
		}
		return nil
	})
	if total <= c.maxBytes {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mt.Before(files[j].mt) })
	for _, f := range files {
		if total <= c.maxBytes {
			break
		}
		_ = os.Remove(f.p)
		total -= f.sz
	}
}
