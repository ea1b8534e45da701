// Package replica implements WorkUnit, the double-buffered, single
// writer / many reader replica of one region's state, plus the fan-out of
// committed procedures to subscribers. There is no direct Go equivalent
// of Rust's left_right crate (what original_source builds this on), so
// the epoch here hand-rolls the same copy-on-write swap the teacher's
// ComponentFilterHandler uses for its per-component level map: readers
// take a lock-free atomic snapshot and are never blocked by a writer;
// the writer never waits on a reader.
package replica

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/klauspost/compress/zstd"

	"higgsd/internal/blobstore"
	"higgsd/internal/format"
	"higgsd/internal/logging"
	"higgsd/internal/replica/broadcast"
	"higgsd/internal/voxel"
	"higgsd/internal/wire"
)

// persistInterval is how often a WorkUnit snapshots and uploads itself.
const persistInterval = 5 * time.Minute

// epoch is one immutable published snapshot. refs counts readers
// currently holding it; it is never waited on, only inspected — a
// published region is never mutated again after being stored, so a
// writer never needs to know when the last reader of an old epoch has
// finished with it.
type epoch struct {
	region *voxel.Region
	refs   sync.WaitGroup
}

// WorkUnit is the replicated state of exactly one region: a writer-owned
// mutable buffer (pending), the most recently published immutable
// snapshot (published), the unpublished suffix of operations applied to
// pending since the last publish (log, kept only to feed the fan-out),
// and the broadcast of committed procedures to subscribers.
type WorkUnit struct {
	regionID uint64

	pending   *voxel.Region
	published atomic.Pointer[epoch]
	log       []Procedure

	fanout   *broadcast.Channel[Procedure]
	writerMu sync.Mutex

	blobClient blobstore.Client
	logger     *slog.Logger

	scheduler gocron.Scheduler
	closeOnce sync.Once
}

// New constructs a WorkUnit for regionID. It attempts to load a prior
// snapshot from blobClient; any failure (not found, I/O, decode) falls
// back to a fresh default region and is logged at Info, since an
// unexplored region has simply never been persisted before.
func New(ctx context.Context, regionID uint64, blobClient blobstore.Client, logger *slog.Logger) (*WorkUnit, error) {
	logger = logging.Default(logger).With("component", "replica", "region_id", regionID)

	region, err := loadOrDefault(ctx, regionID, blobClient, logger)
	if err != nil {
		return nil, err
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create persistence scheduler for region %d: %w", regionID, err)
	}

	u := &WorkUnit{
		regionID:   regionID,
		pending:    region.Clone(),
		fanout:     broadcast.New[Procedure](),
		blobClient: blobClient,
		logger:     logger,
		scheduler:  sched,
	}
	u.published.Store(&epoch{region: region.Clone()})

	if _, err := sched.NewJob(
		gocron.DurationJob(persistInterval),
		gocron.NewTask(u.persistTick, ctx),
		gocron.WithName(fmt.Sprintf("persist-region-%d", regionID)),
	); err != nil {
		return nil, fmt.Errorf("schedule persistence job for region %d: %w", regionID, err)
	}
	sched.Start()

	return u, nil
}

func loadOrDefault(ctx context.Context, regionID uint64, blobClient blobstore.Client, logger *slog.Logger) (*voxel.Region, error) {
	if blobClient == nil {
		return voxel.NewRegion(), nil
	}
	data, err := blobClient.Download(ctx, blobstore.Bucket, blobstore.RegionKey(regionID))
	if err != nil {
		logger.Info("no persisted snapshot, starting from a default region", "error", err)
		return voxel.NewRegion(), nil
	}
	region, err := DecodeSnapshot(data)
	if err != nil {
		logger.Info("could not decode persisted snapshot, starting from a default region", "error", err)
		return voxel.NewRegion(), nil
	}
	return region, nil
}

// DecodeSnapshot strips and validates the envelope header, decompressing
// the payload if the header's FlagCompressed bit is set.
func DecodeSnapshot(data []byte) (*voxel.Region, error) {
	if len(data) < format.HeaderSize {
		return nil, format.ErrHeaderTooSmall
	}
	header, err := format.DecodeAndValidate(data[:format.HeaderSize], wire.TypeRegionSnapshot, wire.RegionSnapshotVersion)
	if err != nil {
		return nil, err
	}
	payload := data[format.HeaderSize:]
	if header.Flags&wire.FlagCompressed != 0 {
		payload, err = decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot payload: %w", err)
		}
	}
	return wire.DecodeRegion(payload)
}

// EncodeSnapshot builds the envelope header plus a zstd-compressed region
// payload, ready for upload.
func EncodeSnapshot(region *voxel.Region) ([]byte, error) {
	raw := wire.EncodeRegion(region)
	compressed, err := compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	header := wire.EnvelopeHeader(true).Encode()
	out := make([]byte, 0, len(header)+len(compressed))
	out = append(out, header[:]...)
	out = append(out, compressed...)
	return out, nil
}

func decompress(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(payload, nil)
}

// RegionID returns the id of the region this unit replicates.
func (u *WorkUnit) RegionID() uint64 { return u.regionID }

// Lock acquires the writer guard. Exactly one goroutine may hold it at a
// time; Append and Publish both require it held.
func (u *WorkUnit) Lock() { u.writerMu.Lock() }

// Unlock releases the writer guard.
func (u *WorkUnit) Unlock() { u.writerMu.Unlock() }

// Append applies op, tagged with clientID, to the pending buffer and
// records it for the next Publish's fan-out. The caller must hold the
// writer guard. Returns the operation's own validation error without
// mutating anything if op is out of bounds.
func (u *WorkUnit) Append(clientID ClientID, op voxel.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	op.Apply(u.pending)
	u.log = append(u.log, Procedure{ClientID: clientID, Operation: op})
	return nil
}

// Publish makes every operation appended since the last Publish visible
// to readers: it clones pending into a fresh immutable snapshot, swaps it
// in as the current epoch, then broadcasts every appended procedure to
// fan-out subscribers. The caller must hold the writer guard.
func (u *WorkUnit) Publish() {
	if len(u.log) == 0 {
		return
	}
	snapshot := u.pending.Clone()
	u.published.Store(&epoch{region: snapshot})

	for _, proc := range u.log {
		u.fanout.Publish(proc)
	}
	u.log = u.log[:0]
}

// ReaderHandle is a live reference into one published epoch, obtained via
// Enter. The caller must call Close when done.
type ReaderHandle struct {
	e *epoch
}

// Region returns the snapshot this handle refers to. It must not be
// mutated: published regions are immutable for their entire lifetime.
func (h *ReaderHandle) Region() *voxel.Region { return h.e.region }

// Close releases the handle.
func (h *ReaderHandle) Close() { h.e.refs.Done() }

// Enter returns a handle on the currently published epoch. Lock-free:
// readers never block on, or are blocked by, the writer.
func (u *WorkUnit) Enter() *ReaderHandle {
	e := u.published.Load()
	e.refs.Add(1)
	return &ReaderHandle{e: e}
}

// Subscribe registers a new fan-out subscriber starting from now: it
// receives every procedure published after this call, across every
// client but ignoring none — echo suppression against the subscriber's
// own client id is the subscriber's responsibility (internal/session
// filters on ClientID itself).
func (u *WorkUnit) Subscribe() *broadcast.Subscription[Procedure] {
	return u.fanout.Subscribe()
}

// Snapshot returns a deep copy of the currently published region.
func (u *WorkUnit) Snapshot() *voxel.Region {
	h := u.Enter()
	defer h.Close()
	return h.Region().Clone()
}

// persistTick is the scheduled task body: encode the current snapshot,
// optionally compress it, and upload it. Failure is logged and retried
// on the next tick — a WorkUnit is never taken offline by a failed save.
func (u *WorkUnit) persistTick(ctx context.Context) {
	if err := u.save(ctx); err != nil {
		u.logger.Warn("periodic snapshot save failed, will retry next tick", "error", err)
	}
}

func (u *WorkUnit) save(ctx context.Context) error {
	if u.blobClient == nil {
		return nil
	}
	region := u.Snapshot()
	envelope, err := EncodeSnapshot(region)
	if err != nil {
		return err
	}

	if err := u.blobClient.Upload(ctx, blobstore.Bucket, blobstore.RegionKey(u.regionID), envelope); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	u.logger.Info("persisted region snapshot", "bytes", len(envelope))
	return nil
}

func compress(payload []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(payload, make([]byte, 0, len(payload))), nil
}

// Close stops the persistence scheduler and performs one final
// synchronous save, avoiding the race between a scheduled tick and a
// shutdown-time save firing concurrently: only one of the two ever runs
// after Close is called.
func (u *WorkUnit) Close(ctx context.Context) error {
	var err error
	u.closeOnce.Do(func() {
		if shutdownErr := u.scheduler.Shutdown(); shutdownErr != nil {
			u.logger.Warn("persistence scheduler shutdown error", "error", shutdownErr)
		}
		err = u.save(ctx)
	})
	return err
}
