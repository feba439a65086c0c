package objectstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Artifacts are pushed to the London region unless told otherwise.
const defaultS3Region = "eu-west-2"

type s3Store struct {
	bucket string
	prefix string
	api    *s3.Client
}

func newS3Provider(ctx context.Context, cfg Config) (Provider, error) {
	loaders := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(firstNonEmpty(cfg.Region, defaultS3Region)),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" || cfg.SessionToken != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
		loaders = append(loaders, awsconfig.WithCredentialsProvider(static))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &s3Store{bucket: cfg.Bucket, prefix: cfg.Prefix, api: api}, nil
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if p := ResolveKey(s.prefix, prefix); p != "" {
		input.Prefix = aws.String(p)
	}
	var found []ObjectInfo
	pages := s3.NewListObjectsV2Paginator(s.api, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				found = append(found, s3ObjectInfo(obj))
			}
		}
	}
	return found, nil
}

func s3ObjectInfo(obj types.Object) ObjectInfo {
	return ObjectInfo{
		Key:          aws.ToString(obj.Key),
		Size:         aws.ToInt64(obj.Size),
		ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
		LastModified: aws.ToTime(obj.LastModified),
	}
}

func (s *s3Store) Upload(ctx context.Context, key string, localPath string, contentType string) (ObjectInfo, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer src.Close()
	stat, err := src.Stat()
	if err != nil {
		return ObjectInfo{}, err
	}

	objectKey := ResolveKey(s.prefix, key)
	out, err := manager.NewUploader(s.api).Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        src,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("s3 put %s: %w", objectKey, err)
	}
	return ObjectInfo{
		Key:          objectKey,
		Size:         stat.Size(),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified: time.Now(),
	}, nil
}

func (s *s3Store) Download(ctx context.Context, key string, localPath string) (ObjectInfo, error) {
	dst, err := createLocal(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer dst.Close()

	objectKey := ResolveKey(s.prefix, key)
	n, err := manager.NewDownloader(s.api).Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("s3 get %s: %w", objectKey, err)
	}
	return ObjectInfo{Key: objectKey, Size: n}, nil
}

func (s *s3Store) Close() error { return nil }
