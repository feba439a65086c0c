package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const indexFile = "index.json"

// Entry is one cached asset.
type Entry struct {
	Ref       string    `json:"ref"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache keeps fetched assets on local disk, keyed by their remote reference.
// The index survives between runs so a warm cache skips the download.
type Cache struct {
	dir string

	mu    sync.Mutex
	index map[string]*Entry
}

// OpenCache loads or creates the cache rooted at dir.
func OpenCache(dir string) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("asset cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset cache: %w", err)
	}
	c := &Cache{dir: dir, index: map[string]*Entry{}}
	payload, err := os.ReadFile(filepath.Join(dir, indexFile))
	switch {
	case err == nil:
		// A corrupt index only costs a refetch.
		_ = json.Unmarshal(payload, &c.index)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read asset index: %w", err)
	}
	return c, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Get returns the entry for ref when its file is still present and, if want is set,
// its checksum matches.
func (c *Cache) Get(ref, want string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.index[ref]
	if !ok {
		return nil, false
	}
	if _, err := os.Stat(entry.Path); err != nil {
		delete(c.index, ref)
		return nil, false
	}
	if want != "" && !strings.EqualFold(entry.Checksum, want) {
		return nil, false
	}
	return entry, true
}

// Path returns where ref is stored once cached.
func (c *Cache) Path(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])+"-"+filepath.Base(ref))
}

// Commit records the file at Path(ref), verifying it against want when set.
// A mismatching file is removed.
func (c *Cache) Commit(ref, want string) (*Entry, error) {
	path := c.Path(ref)
	checksum, size, err := checksumFile(path)
	if err != nil {
		return nil, err
	}
	if want != "" && !strings.EqualFold(checksum, want) {
		_ = os.Remove(path)
		return nil, fmt.Errorf("checksum mismatch for %s: got %s, want %s", ref, checksum, want)
	}
	entry := &Entry{Ref: ref, Path: path, Size: size, Checksum: checksum, FetchedAt: time.Now().UTC()}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[ref] = entry
	return entry, c.saveLocked()
}

// Prune drops entries fetched longer than maxAge ago.
func (c *Cache) Prune(maxAge time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for ref, entry := range c.index {
		if entry.FetchedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", entry.Path, err)
		}
		delete(c.index, ref)
		removed++
	}
	return removed, c.saveLocked()
}

func (c *Cache) saveLocked() error {
	payload, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(c.dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(c.dir, indexFile))
}

func checksumFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}
