// Package gcs is the blobstore.Client backend for Google Cloud Storage,
// built on cloud.google.com/go/storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"higgsd/internal/blobstore"
)

// Client wraps a storage.Client using application-default credentials.
type Client struct {
	api *storage.Client
}

// New constructs a Client using application-default credentials.
func New(ctx context.Context) (*Client, error) {
	api, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("new gcs client: %w", err)
	}
	return &Client{api: api}, nil
}

// Upload writes data as an object named key inside bucket, overwriting
// any existing object.
func (c *Client) Upload(ctx context.Context, bucket, key string, data []byte) error {
	w := c.api.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s/%s: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close writer %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Download reads the object named key from bucket, returning
// blobstore.ErrNotFound if it does not exist.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := c.api.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("gcs new reader %s/%s: %w", bucket, key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read body %s/%s: %w", bucket, key, err)
	}
	return data, nil
}
