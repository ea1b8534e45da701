// Package azureblob is the blobstore.Client backend for Azure Blob
// Storage, built on the azblob SDK.
package azureblob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azblobtypes "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"higgsd/internal/blobstore"
)

// Client wraps an azblob.Client against one storage account. Azure blob
// containers, unlike S3/GCS buckets, are scoped per account: callers pass
// blobstore's logical "bucket" through as the container name.
type Client struct {
	api *azblobtypes.Client
}

// New constructs a Client against serviceURL (e.g.
// "https://<account>.blob.core.windows.net") using cred for
// authentication.
func New(serviceURL string, cred azcore.TokenCredential) (*Client, error) {
	api, err := azblobtypes.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("new azblob client: %w", err)
	}
	return &Client{api: api}, nil
}

// Upload uploads data as a block blob named key inside container bucket,
// overwriting any existing blob.
func (c *Client) Upload(ctx context.Context, bucket, key string, data []byte) error {
	_, err := c.api.UploadBuffer(ctx, bucket, key, data, nil)
	if err != nil {
		return fmt.Errorf("azblob upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Download fetches the blob named key from container bucket, returning
// blobstore.ErrNotFound if it does not exist.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	resp, err := c.api.DownloadStream(ctx, bucket, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("azblob download %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("azblob read body %s/%s: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}
