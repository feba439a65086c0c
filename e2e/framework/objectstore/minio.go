package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioProvider talks to MinIO or any S3-compatible endpoint without AWS credential chains.
type minioProvider struct {
	cfg    Config
	client *minio.Client
}

func newMinioProvider(cfg Config) (Provider, error) {
	endpoint, secure, err := minioEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &minioProvider{cfg: cfg, client: client}, nil
}

// minioEndpoint accepts host:port or a URL; an http:// URL or Insecure disables TLS.
func minioEndpoint(cfg Config) (string, bool, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		return "", false, fmt.Errorf("minio endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, !cfg.Insecure, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid minio endpoint %q: %w", raw, err)
	}
	return parsed.Host, parsed.Scheme == "https" && !cfg.Insecure, nil
}

func (p *minioProvider) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range p.client.ListObjects(ctx, p.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    ResolveKey(p.cfg.Prefix, prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, "\""),
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

func (p *minioProvider) Upload(ctx context.Context, key string, localPath string, contentType string) (ObjectInfo, error) {
	remoteKey := ResolveKey(p.cfg.Prefix, key)
	info, err := p.client.FPutObject(ctx, p.cfg.Bucket, remoteKey, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: remoteKey, Size: info.Size, ETag: strings.Trim(info.ETag, "\""), LastModified: time.Now()}, nil
}

func (p *minioProvider) Download(ctx context.Context, key string, localPath string) (ObjectInfo, error) {
	remoteKey := ResolveKey(p.cfg.Prefix, key)
	if err := p.client.FGetObject(ctx, p.cfg.Bucket, remoteKey, localPath, minio.GetObjectOptions{}); err != nil {
		return ObjectInfo{}, err
	}
	stat, err := os.Stat(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: remoteKey, Size: stat.Size(), LastModified: stat.ModTime()}, nil
}

func (p *minioProvider) Close() error {
	return nil
}
