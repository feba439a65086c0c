// Package assets makes files the harness injects into pages, such as the axe-core
// ruleset, available locally. Remote references are pulled from an object store
// into a checksummed cache.
package assets

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/objectstore"
)

// Source is a parsed remote reference.
type Source struct {
	Provider string
	Bucket   string
	Key      string
}

var schemes = map[string]string{
	"s3":    "s3",
	"gs":    "gcs",
	"gcs":   "gcs",
	"az":    "azure",
	"azure": "azure",
	"minio": "minio",
}

// ParseRef splits ref into a remote source. ok is false for plain local paths.
func ParseRef(ref string) (src Source, ok bool, err error) {
	scheme, _, found := strings.Cut(ref, "://")
	if !found {
		return Source{}, false, nil
	}
	provider, known := schemes[strings.ToLower(scheme)]
	if !known {
		return Source{}, false, fmt.Errorf("unsupported asset scheme %q in %s", scheme, ref)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return Source{}, false, fmt.Errorf("invalid asset reference %s: %w", ref, err)
	}
	src = Source{Provider: provider, Bucket: parsed.Host, Key: strings.TrimPrefix(parsed.Path, "/")}
	if src.Bucket == "" || src.Key == "" {
		return Source{}, false, fmt.Errorf("asset reference %s needs a bucket and a key", ref)
	}
	return src, true, nil
}

// Opener creates an object store client.
type Opener func(ctx context.Context, cfg objectstore.Config) (objectstore.Provider, error)

// Fetcher resolves asset references to local files.
type Fetcher struct {
	cache  *Cache
	base   objectstore.Config
	open   Opener
	logger *zap.Logger
}

// NewFetcher returns a fetcher caching under cacheDir. base supplies credentials and
// endpoints; provider and bucket come from each reference.
func NewFetcher(cacheDir string, base objectstore.Config, open Opener, logger *zap.Logger) (*Fetcher, error) {
	cache, err := OpenCache(cacheDir)
	if err != nil {
		return nil, err
	}
	if open == nil {
		open = objectstore.NewProvider
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cache: cache, base: base, open: open, logger: logger}, nil
}

// Fetch returns a local path for ref, downloading it when it is remote and not yet
// cached with the wanted checksum. Local paths must exist.
func (f *Fetcher) Fetch(ctx context.Context, ref, wantSHA256 string) (string, error) {
	src, remote, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	if !remote {
		if _, err := os.Stat(ref); err != nil {
			return "", fmt.Errorf("asset %s: %w", ref, err)
		}
		return ref, nil
	}
	if entry, ok := f.cache.Get(ref, wantSHA256); ok {
		f.logger.Debug("asset cache hit", zap.String("ref", ref), zap.String("path", entry.Path))
		return entry.Path, nil
	}

	cfg := f.base
	cfg.Provider = src.Provider
	cfg.Bucket = src.Bucket
	// The key in the reference is absolute within the bucket.
	cfg.Prefix = ""
	provider, err := f.open(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("open %s store for %s: %w", src.Provider, ref, err)
	}
	defer provider.Close()

	info, err := provider.Download(ctx, src.Key, f.cache.Path(ref))
	if err != nil {
		return "", fmt.Errorf("download %s: %w", ref, err)
	}
	entry, err := f.cache.Commit(ref, wantSHA256)
	if err != nil {
		return "", err
	}
	f.logger.Info("asset fetched",
		zap.String("ref", ref),
		zap.String("path", entry.Path),
		zap.Int64("size", info.Size),
		zap.String("sha256", entry.Checksum),
	)
	return entry.Path, nil
}

// Localize rewrites cfg.AxeScriptPath to a local file when it names a remote object.
func Localize(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.AxeScriptPath == "" {
		return nil
	}
	if _, remote, err := ParseRef(cfg.AxeScriptPath); err != nil || !remote {
		return err
	}
	fetcher, err := NewFetcher(cfg.AssetCacheDir, objectstore.FromConfig(cfg), nil, logger)
	if err != nil {
		return err
	}
	path, err := fetcher.Fetch(ctx, cfg.AxeScriptPath, cfg.AxeScriptSHA256)
	if err != nil {
		return err
	}
	cfg.AxeScriptPath = path
	return nil
}
