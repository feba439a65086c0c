package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcsStore struct {
	prefix string
	bucket *storage.BucketHandle
	client *storage.Client
}

func newGCSProvider(ctx context.Context, cfg Config) (Provider, error) {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.GCPCredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GCPCredentialsJSON)))
	case strings.TrimSpace(cfg.GCPCredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.GCPCredentialsFile))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &gcsStore{prefix: cfg.Prefix, bucket: client.Bucket(cfg.Bucket), client: client}, nil
}

func (g *gcsStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var found []ObjectInfo
	objects := g.bucket.Objects(ctx, &storage.Query{Prefix: ResolveKey(g.prefix, prefix)})
	for {
		attrs, err := objects.Next()
		switch {
		case errors.Is(err, iterator.Done):
			return found, nil
		case err != nil:
			return nil, fmt.Errorf("gcs list: %w", err)
		}
		found = append(found, ObjectInfo{Key: attrs.Name, Size: attrs.Size, ETag: attrs.Etag, LastModified: attrs.Updated})
	}
}

func (g *gcsStore) Upload(ctx context.Context, key string, localPath string, contentType string) (ObjectInfo, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer src.Close()

	objectKey := ResolveKey(g.prefix, key)
	w := g.bucket.Object(objectKey).NewWriter(ctx)
	w.ContentType = contentType
	n, copyErr := io.Copy(w, src)
	// Close commits the object, so its error matters even after a clean copy.
	if err := errors.Join(copyErr, w.Close()); err != nil {
		return ObjectInfo{}, fmt.Errorf("gcs put %s: %w", objectKey, err)
	}
	info := ObjectInfo{Key: objectKey, Size: n}
	if attrs := w.Attrs(); attrs != nil {
		info.ETag, info.LastModified = attrs.Etag, attrs.Updated
	}
	return info, nil
}

func (g *gcsStore) Download(ctx context.Context, key string, localPath string) (ObjectInfo, error) {
	objectKey := ResolveKey(g.prefix, key)
	r, err := g.bucket.Object(objectKey).NewReader(ctx)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("gcs get %s: %w", objectKey, err)
	}
	defer r.Close()
	dst, err := createLocal(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer dst.Close()
	n, err := io.Copy(dst, r)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("gcs get %s: %w", objectKey, err)
	}
	return ObjectInfo{Key: objectKey, Size: n, LastModified: r.Attrs.LastModified}, nil
}

func (g *gcsStore) Close() error { return g.client.Close() }
