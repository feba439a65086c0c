package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

type azureStore struct {
	prefix    string
	container *container.Client
}

func newAzureProvider(cfg Config) (Provider, error) {
	containerURL, err := azureContainerURL(cfg)
	if err != nil {
		return nil, err
	}
	client, err := azureContainerClient(cfg, containerURL)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &azureStore{prefix: cfg.Prefix, container: client}, nil
}

// azureContainerClient authenticates with a SAS token, then a shared key, then the
// default credential chain.
func azureContainerClient(cfg Config, containerURL string) (*container.Client, error) {
	if strings.TrimSpace(cfg.AzureSASToken) != "" {
		return container.NewClientWithNoCredential(containerURL, nil)
	}
	if key := strings.TrimSpace(cfg.AzureKey); key != "" {
		if strings.TrimSpace(cfg.AzureAccount) == "" {
			return nil, errors.New("azure account name is required for shared key auth")
		}
		shared, err := azblob.NewSharedKeyCredential(cfg.AzureAccount, key)
		if err != nil {
			return nil, err
		}
		return container.NewClientWithSharedKeyCredential(containerURL, shared, nil)
	}
	chain, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return container.NewClient(containerURL, chain, nil)
}

func azureContainerURL(cfg Config) (string, error) {
	service := strings.TrimRight(strings.TrimSpace(cfg.AzureEndpoint), "/")
	if service == "" {
		account := strings.TrimSpace(cfg.AzureAccount)
		if account == "" {
			return "", errors.New("azure endpoint or account name is required")
		}
		service = "https://" + account + ".blob.core.windows.net"
	}
	u := service + "/" + cfg.Bucket
	if sas := strings.TrimPrefix(strings.TrimSpace(cfg.AzureSASToken), "?"); sas != "" {
		u += "?" + sas
	}
	return u, nil
}

func (a *azureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	opts := &container.ListBlobsFlatOptions{}
	if p := ResolveKey(a.prefix, prefix); p != "" {
		opts.Prefix = to.Ptr(p)
	}
	var found []ObjectInfo
	pager := a.container.NewListBlobsFlatPager(opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, describeAzureError(prefix, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item != nil && item.Name != nil {
				found = append(found, azureObjectInfo(item))
			}
		}
	}
	return found, nil
}

func azureObjectInfo(item *container.BlobItem) ObjectInfo {
	info := ObjectInfo{Key: *item.Name}
	props := item.Properties
	if props == nil {
		return info
	}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		info.ETag = string(*props.ETag)
	}
	return info
}

func (a *azureStore) Upload(ctx context.Context, key string, localPath string, contentType string) (ObjectInfo, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer src.Close()
	stat, err := src.Stat()
	if err != nil {
		return ObjectInfo{}, err
	}

	blobName := ResolveKey(a.prefix, key)
	resp, err := a.container.NewBlockBlobClient(blobName).UploadFile(ctx, src, &blockblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return ObjectInfo{}, describeAzureError(blobName, err)
	}
	info := ObjectInfo{Key: blobName, Size: stat.Size()}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	return info, nil
}

func (a *azureStore) Download(ctx context.Context, key string, localPath string) (ObjectInfo, error) {
	dst, err := createLocal(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer dst.Close()

	blobName := ResolveKey(a.prefix, key)
	n, err := a.container.NewBlobClient(blobName).DownloadFile(ctx, dst, nil)
	if err != nil {
		return ObjectInfo{}, describeAzureError(blobName, err)
	}
	return ObjectInfo{Key: blobName, Size: n}, nil
}

// describeAzureError surfaces the service status and error code of a failed request.
func describeAzureError(key string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("azure blob %s: %d %s: %w", key, respErr.StatusCode, respErr.ErrorCode, err)
	}
	return fmt.Errorf("azure blob %s: %w", key, err)
}

func (a *azureStore) Close() error { return nil }
