// Package blobstore abstracts region snapshot persistence over whichever
// object store the process was configured to use: S3, Azure Blob, GCS, or
// an in-memory store for tests and zero-config local runs. Every backend
// implements the same two-method Client interface; nothing above this
// package knows which one is wired in.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Download when no object exists at the given
// bucket/key. Callers treat this as an expected case for a region that
// has never been persisted, not as a failure.
var ErrNotFound = errors.New("blobstore: object not found")

// Client uploads and downloads opaque byte payloads keyed by bucket and
// key. Implementations must be safe for concurrent use.
type Client interface {
	Upload(ctx context.Context, bucket, key string, data []byte) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Bucket is the single bucket this system persists region snapshots to.
const Bucket = "xenotech"

// RegionKey returns the storage key for a region's snapshot, decimal
// region id per spec.
func RegionKey(regionID uint64) string {
	return "regions/" + uintToDecimal(regionID)
}

func uintToDecimal(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
