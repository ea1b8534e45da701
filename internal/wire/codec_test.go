package wire

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"higgsd/internal/spatial"
	"higgsd/internal/voxel"
)

func regionsEqual(t *testing.T, a, b *voxel.Region) {
	t.Helper()
	if len(a.Chunks) != len(b.Chunks) {
		t.Fatalf("chunk count mismatch: %d vs %d", len(a.Chunks), len(b.Chunks))
	}
	for i := range a.Chunks {
		av := a.Chunks[i].Vector()
		bv := b.Chunks[i].Vector()
		if av.Len() != bv.Len() {
			t.Fatalf("chunk %d length mismatch", i)
		}
		indices := make([]uint64, av.Len())
		for j := range indices {
			indices[j] = uint64(j)
		}
		if !reflect.DeepEqual(av.Get(indices), bv.Get(indices)) {
			t.Fatalf("chunk %d contents mismatch", i)
		}
	}
	if !reflect.DeepEqual(a.Entities, b.Entities) {
		t.Fatalf("entities mismatch: %+v vs %+v", a.Entities, b.Entities)
	}
}

func TestRegionRoundTripDefault(t *testing.T) {
	r := voxel.NewRegion()
	decoded, err := DecodeRegion(EncodeRegion(r))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	regionsEqual(t, r, decoded)
}

func TestRegionRoundTripAfterOperations(t *testing.T) {
	r := voxel.NewRegion()
	pos1 := spatial.NewRegionPosition(1, 2, 3)
	pos2 := spatial.NewRegionPosition(9, 9, 9)
	voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{
		pos1: voxel.Stone,
		pos2: voxel.Grass,
	}).Apply(r)

	playerID := uuid.New()
	voxel.NewInsertEntity(map[voxel.EntityID]voxel.Entity{
		playerID: voxel.NewPlayer(playerID, [3]float32{1.5, 2.5, 3.5}, [2]float32{0.1, 0.2}),
	}).Apply(r)

	decoded, err := DecodeRegion(EncodeRegion(r))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	regionsEqual(t, r, decoded)
}

func TestRegionEncodeIsDeterministicAcrossEntityOrder(t *testing.T) {
	r1 := voxel.NewRegion()
	r2 := voxel.NewRegion()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	// Insert in one order into r1, reverse order into r2.
	for _, id := range ids {
		voxel.NewInsertEntity(map[voxel.EntityID]voxel.Entity{
			id: voxel.NewPlayer(id, [3]float32{}, [2]float32{}),
		}).Apply(r1)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		voxel.NewInsertEntity(map[voxel.EntityID]voxel.Entity{
			id: voxel.NewPlayer(id, [3]float32{}, [2]float32{}),
		}).Apply(r2)
	}

	e1 := EncodeRegion(r1)
	e2 := EncodeRegion(r2)
	if !reflect.DeepEqual(e1, e2) {
		t.Fatal("expected identical encoding regardless of insertion order")
	}
}

func TestOperationRoundTripSetBlocks(t *testing.T) {
	op := voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{
		spatial.NewRegionPosition(1, 1, 1): voxel.Dirt,
	})
	decoded, err := DecodeOperation(EncodeOperation(op))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != voxel.OpSetBlocks || !reflect.DeepEqual(decoded.SetBlocks, op.SetBlocks) {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestOperationRoundTripRemoveEntity(t *testing.T) {
	id := uuid.New()
	op := voxel.NewRemoveEntity(map[voxel.EntityID]struct{}{id: {}})
	decoded, err := DecodeOperation(EncodeOperation(op))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != voxel.OpRemoveEntity || !reflect.DeepEqual(decoded.RemoveEntity, op.RemoveEntity) {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestRequestRoundTripSubscribe(t *testing.T) {
	req := NewSubscribeRequest([]uint64{1, 2, 3})
	decoded, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, req) {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, req)
	}
}

func TestRequestRoundTripPerform(t *testing.T) {
	req := NewPerformRequest(map[uint64][]voxel.Operation{
		7: {
			voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{
				spatial.NewRegionPosition(0, 0, 0): voxel.Air,
			}),
			voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{
				spatial.NewRegionPosition(1, 0, 0): voxel.Stone,
			}),
		},
		// a region with no operations still round-trips as an empty list.
		3: {},
	})
	decoded, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, req) {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, req)
	}
}

func TestResponseRoundTripPublish(t *testing.T) {
	resp := NewPublishResponse(map[uint64][]voxel.Operation{
		42: {voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{
			spatial.NewRegionPosition(2, 2, 2): voxel.Grass,
		})},
		// a region with no new procedures still contributes an entry.
		7: {},
	})
	decoded, err := DecodeResponse(EncodeResponse(resp))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, resp) {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, resp)
	}
}

func TestResponseRoundTripRefresh(t *testing.T) {
	r := voxel.NewRegion()
	voxel.NewSetBlocks(map[spatial.RegionPosition]voxel.Block{
		spatial.NewRegionPosition(3, 3, 3): voxel.Stone,
	}).Apply(r)
	resp := NewRefreshResponse(map[uint64]*voxel.Region{9: r})
	decoded, err := DecodeResponse(EncodeResponse(resp))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != ResponseRefresh || len(decoded.Refresh) != 1 {
		t.Fatalf("unexpected response: %+v", decoded)
	}
	regionsEqual(t, r, decoded.Refresh[9])
}

func TestDecodeRegionRejectsTruncatedInput(t *testing.T) {
	full := EncodeRegion(voxel.NewRegion())
	_, err := DecodeRegion(full[:len(full)/2])
	if err == nil {
		t.Fatal("expected decode error on truncated input")
	}
}

func TestDecodeOperationRejectsUnknownKind(t *testing.T) {
	buf := []byte{255}
	_, err := DecodeOperation(buf)
	if err == nil {
		t.Fatal("expected decode error on unknown operation kind")
	}
}

func TestDecodeOperationRejectsTrailingBytes(t *testing.T) {
	op := voxel.NewRemoveEntity(map[voxel.EntityID]struct{}{uuid.New(): {}})
	buf := append(EncodeOperation(op), 0xFF)
	_, err := DecodeOperation(buf)
	if err == nil {
		t.Fatal("expected decode error on trailing bytes")
	}
}
