package cloud

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/pkg/errors"
)

// AzureBlobBackend is a model.CloudBackend backed by an Azure Blob Storage
// container, the second of the two ordered cloud backends C9 fails over
// across (spec.md §4.9, §6).
type AzureBlobBackend struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobBackend connects using a storage account connection string
// and scopes the backend to container.
func NewAzureBlobBackend(connectionString, container string) (*AzureBlobBackend, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create azure blob client")
	}
	return &AzureBlobBackend{client: client, container: container}, nil
}

// Name implements model.CloudBackend.
func (b *AzureBlobBackend) Name() string { return "azblob:" + b.container }

// PutObject implements model.CloudBackend.
func (b *AzureBlobBackend) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, nil)
	if err != nil {
		return errors.Wrapf(err, "azblob: failed to put object %s", key)
	}
	return nil
}

// GetObject implements model.CloudBackend.
func (b *AzureBlobBackend) GetObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "azblob: failed to get object %s", key)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, errors.Wrapf(err, "azblob: failed to read object body %s", key)
	}
	return buf.Bytes(), nil
}

// ListKeysWithPrefix implements model.CloudBackend.
func (b *AzureBlobBackend) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "azblob: failed to list blobs under %s", prefix)
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil && strings.HasPrefix(*blob.Name, prefix) {
				keys = append(keys, *blob.Name)
			}
		}
	}
	return keys, nil
}
