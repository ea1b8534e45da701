package replica

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"higgsd/internal/blobstore"
	"higgsd/internal/blobstore/memory"
	"higgsd/internal/spatial"
	"higgsd/internal/voxel"
)

func newTestUnit(t *testing.T, regionID uint64, blobClient blobstore.Client) *WorkUnit {
	t.Helper()
	u, err := New(context.Background(), regionID, blobClient, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { u.Close(context.Background()) })
	return u
}

func TestNewWorkUnitDefaultsToEmptyRegion(t *testing.T) {
	u := newTestUnit(t, 1, nil)
	h := u.Enter()
	defer h.Close()
	if len(h.Region().Entities) != 0 {
		t.Fatal("expected a fresh default region")
	}
}

func TestPublishMakesOperationsVisibleToReaders(t *testing.T) {
	u := newTestUnit(t, 1, nil)
	pos := spatial.NewRegionPosition(1, 1, 1)
	client := uuid.New()

	u.Lock()
	if err := u.Append(client, voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{pos: voxel.Stone})); err != nil {
		t.Fatalf("append: %v", err)
	}
	u.Publish()
	u.Unlock()

	h := u.Enter()
	defer h.Close()
	got := h.Region().GetBlocks([]spatial.RegionPosition{pos})[pos]
	if got != voxel.Stone {
		t.Fatalf("expected Stone after publish, got %v", got)
	}
}

func TestEnterSnapshotIsUnaffectedByLaterPublish(t *testing.T) {
	u := newTestUnit(t, 1, nil)
	pos := spatial.NewRegionPosition(2, 2, 2)
	client := uuid.New()

	before := u.Enter()
	defer before.Close()

	u.Lock()
	u.Append(client, voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{pos: voxel.Dirt}))
	u.Publish()
	u.Unlock()

	if got := before.Region().GetBlocks([]spatial.RegionPosition{pos})[pos]; got != voxel.Void {
		t.Fatalf("expected handle taken before publish to stay Void, got %v", got)
	}

	after := u.Enter()
	defer after.Close()
	if got := after.Region().GetBlocks([]spatial.RegionPosition{pos})[pos]; got != voxel.Dirt {
		t.Fatalf("expected handle taken after publish to see Dirt, got %v", got)
	}
}

func TestAppendRejectsOutOfBoundsOperation(t *testing.T) {
	u := newTestUnit(t, 1, nil)
	span := uint64(spatial.RegionAxis * spatial.ChunkAxis)
	bad := spatial.NewRegionPosition(span, 0, 0)

	u.Lock()
	defer u.Unlock()
	err := u.Append(uuid.New(), voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{bad: voxel.Stone}))
	if err == nil {
		t.Fatal("expected bounds violation error")
	}
	if len(u.log) != 0 {
		t.Fatal("rejected operation must not be appended to the log")
	}
}

func TestSubscribeReceivesPublishedProcedure(t *testing.T) {
	u := newTestUnit(t, 1, nil)
	sub := u.Subscribe()
	defer sub.Close()

	client := uuid.New()
	op := voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{
		spatial.NewRegionPosition(0, 0, 0): voxel.Grass,
	})

	u.Lock()
	u.Append(client, op)
	u.Publish()
	u.Unlock()

	select {
	case proc := <-sub.C():
		if proc.ClientID != client {
			t.Fatalf("expected client id %v, got %v", client, proc.ClientID)
		}
	default:
		t.Fatal("expected a published procedure to be available")
	}
}

func TestPublishWithoutAppendIsANoOp(t *testing.T) {
	u := newTestUnit(t, 1, nil)
	sub := u.Subscribe()
	defer sub.Close()

	u.Lock()
	u.Publish()
	u.Unlock()

	got, err := sub.Drain()
	if err != nil {
		t.Fatalf("unexpected lag error: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("expected no procedures published when nothing was appended")
	}
}

func TestClosePersistsFinalSnapshot(t *testing.T) {
	blobClient := memory.New()
	u, err := New(context.Background(), 5, blobClient, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pos := spatial.NewRegionPosition(3, 3, 3)
	u.Lock()
	u.Append(uuid.New(), voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{pos: voxel.Stone}))
	u.Publish()
	u.Unlock()

	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := blobClient.Download(context.Background(), blobstore.Bucket, blobstore.RegionKey(5))
	if err != nil {
		t.Fatalf("download persisted snapshot: %v", err)
	}
	region, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := region.GetBlocks([]spatial.RegionPosition{pos})[pos]; got != voxel.Stone {
		t.Fatalf("expected Stone in persisted snapshot, got %v", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	u := newTestUnit(t, 1, nil)
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNewLoadsPersistedSnapshot(t *testing.T) {
	blobClient := memory.New()
	pos := spatial.NewRegionPosition(4, 4, 4)
	region := voxel.NewRegion()
	voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{pos: voxel.Grass}).Apply(region)
	envelope, err := EncodeSnapshot(region)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	blobClient.Upload(context.Background(), blobstore.Bucket, blobstore.RegionKey(9), envelope)

	u := newTestUnit(t, 9, blobClient)
	h := u.Enter()
	defer h.Close()
	if got := h.Region().GetBlocks([]spatial.RegionPosition{pos})[pos]; got != voxel.Grass {
		t.Fatalf("expected loaded snapshot to carry Grass, got %v", got)
	}
}
