package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/objectstore"
)

const axeBody = "window.axe = { run: function () {} };"

type bucket struct {
	objects   map[string]string
	downloads int
	opened    []objectstore.Config
}

func (b *bucket) opener() Opener {
	return func(ctx context.Context, cfg objectstore.Config) (objectstore.Provider, error) {
		b.opened = append(b.opened, cfg)
		return b, nil
	}
}

func (b *bucket) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	return nil, nil
}

func (b *bucket) Upload(ctx context.Context, key, localPath, contentType string) (objectstore.ObjectInfo, error) {
	return objectstore.ObjectInfo{}, errors.New("read only")
}

func (b *bucket) Download(ctx context.Context, key, localPath string) (objectstore.ObjectInfo, error) {
	body, ok := b.objects[key]
	if !ok {
		return objectstore.ObjectInfo{}, errors.New("NoSuchKey")
	}
	b.downloads++
	if err := os.WriteFile(localPath, []byte(body), 0o644); err != nil {
		return objectstore.ObjectInfo{}, err
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(body))}, nil
}

func (b *bucket) Close() error { return nil }

func sum(body string) string {
	h := sha256.Sum256([]byte(body))
	return hex.EncodeToString(h[:])
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		ref    string
		want   Source
		remote bool
		err    bool
	}{
		{ref: "/opt/axe/axe.min.js"},
		{ref: "vendor/axe.min.js"},
		{ref: "s3://site-assets/axe/4.10/axe.min.js", want: Source{"s3", "site-assets", "axe/4.10/axe.min.js"}, remote: true},
		{ref: "gs://site-assets/axe.min.js", want: Source{"gcs", "site-assets", "axe.min.js"}, remote: true},
		{ref: "az://assets/axe.min.js", want: Source{"azure", "assets", "axe.min.js"}, remote: true},
		{ref: "minio://assets/axe.min.js", want: Source{"minio", "assets", "axe.min.js"}, remote: true},
		{ref: "ftp://assets/axe.min.js", err: true},
		{ref: "s3://bucket-only", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			src, remote, err := ParseRef(tc.ref)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.remote, remote)
			assert.Equal(t, tc.want, src)
		})
	}
}

func TestFetchDownloadsOnceAndCaches(t *testing.T) {
	store := &bucket{objects: map[string]string{"axe/axe.min.js": axeBody}}
	dir := t.TempDir()
	base := objectstore.Config{Region: "eu-west-2", Prefix: "runs"}

	f, err := NewFetcher(dir, base, store.opener(), nil)
	require.NoError(t, err)
	path, err := f.Fetch(context.Background(), "s3://site-assets/axe/axe.min.js", sum(axeBody))
	require.NoError(t, err)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, axeBody, string(body))

	require.Len(t, store.opened, 1)
	assert.Equal(t, "s3", store.opened[0].Provider)
	assert.Equal(t, "site-assets", store.opened[0].Bucket)
	assert.Equal(t, "eu-west-2", store.opened[0].Region)
	assert.Empty(t, store.opened[0].Prefix)

	// A new fetcher over the same directory reads the persisted index.
	f, err = NewFetcher(dir, base, store.opener(), nil)
	require.NoError(t, err)
	again, err := f.Fetch(context.Background(), "s3://site-assets/axe/axe.min.js", "")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, store.downloads)
}

func TestFetchRejectsChecksumMismatch(t *testing.T) {
	store := &bucket{objects: map[string]string{"axe.min.js": "tampered"}}
	f, err := NewFetcher(t.TempDir(), objectstore.Config{}, store.opener(), nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "gs://site-assets/axe.min.js", sum(axeBody))
	assert.ErrorContains(t, err, "checksum mismatch")
	_, statErr := os.Stat(f.cache.Path("gs://site-assets/axe.min.js"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchErrors(t *testing.T) {
	store := &bucket{objects: map[string]string{}}
	f, err := NewFetcher(t.TempDir(), objectstore.Config{}, store.opener(), nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "s3://site-assets/missing.js", "")
	assert.ErrorContains(t, err, "NoSuchKey")

	_, err = f.Fetch(context.Background(), filepath.Join(t.TempDir(), "absent.js"), "")
	assert.Error(t, err)

	local := filepath.Join(t.TempDir(), "axe.min.js")
	require.NoError(t, os.WriteFile(local, []byte(axeBody), 0o644))
	path, err := f.Fetch(context.Background(), local, "")
	require.NoError(t, err)
	assert.Equal(t, local, path)
}

func TestCachePrune(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	ref := "s3://site-assets/axe.min.js"
	require.NoError(t, os.WriteFile(c.Path(ref), []byte(axeBody), 0o644))
	entry, err := c.Commit(ref, "")
	require.NoError(t, err)
	assert.Equal(t, sum(axeBody), entry.Checksum)

	removed, err := c.Prune(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = c.Prune(-time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok := c.Get(ref, "")
	assert.False(t, ok)
}

func TestLocalizeLeavesLocalPaths(t *testing.T) {
	cfg := config.Default()
	cfg.AxeScriptPath = "/opt/axe/axe.min.js"
	require.NoError(t, Localize(context.Background(), cfg, nil))
	assert.Equal(t, "/opt/axe/axe.min.js", cfg.AxeScriptPath)

	cfg.AxeScriptPath = "ftp://x/y"
	assert.Error(t, Localize(context.Background(), cfg, nil))
}
