// Package memory is an in-process blobstore.Client backend: a guarded map,
// used for tests and the zero-config "BLOB_BACKEND=memory" boot mode.
package memory

import (
	"context"
	"sync"

	"higgsd/internal/blobstore"
)

// Client stores uploaded payloads in a process-local map. Nothing is
// persisted across restarts.
type Client struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns an empty in-memory client.
func New() *Client {
	return &Client{objects: make(map[string][]byte)}
}

func objectKey(bucket, key string) string { return bucket + "/" + key }

// Upload stores data, replacing any existing object at bucket/key.
func (c *Client) Upload(_ context.Context, bucket, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.mu.Lock()
	c.objects[objectKey(bucket, key)] = cp
	c.mu.Unlock()
	return nil
}

// Download returns blobstore.ErrNotFound if no object exists at bucket/key.
func (c *Client) Download(_ context.Context, bucket, key string) ([]byte, error) {
	c.mu.RLock()
	data, ok := c.objects[objectKey(bucket, key)]
	c.mu.RUnlock()
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
