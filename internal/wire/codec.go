// Package wire is the canonical binary codec for everything that crosses a
// process boundary: the Region snapshot written to blob storage, and the
// Request/Response/Operation frames exchanged between a client and a
// session over the transport stream. Encoding is hand-rolled on
// encoding/binary rather than a general-purpose serialization library,
// matching the fixed, closed grammar spec.md §6 defines — there is no
// schema evolution to support, so a reflective codec would buy nothing.
//
// Every multi-byte integer is little-endian. Every variable-length field
// (byte strings, maps, lists) is length-prefixed with a uint32 element or
// byte count, never delimiter-terminated. Closed enums (Operation kind,
// Entity kind, Request/Response variant) are selected by a single leading
// tag byte.
package wire

import (
	"fmt"

	"github.com/google/uuid"
	"higgsd/internal/spatial"
	"higgsd/internal/voxel"
)

// EncodeRegion canonically encodes a region: its chunks in linearization
// order, each as a 1-byte width followed by a length-prefixed little-endian
// word payload, then the entity map as a length-prefixed list sorted by
// entity id byte order. Sorting on encode, rather than relying on map
// iteration order, is what makes decode(encode(r)) reproducible.
func EncodeRegion(r *voxel.Region) []byte {
	w := newWriter()
	w.putUint32(uint32(len(r.Chunks)))
	for _, c := range r.Chunks {
		encodeChunk(w, c)
	}
	encodeEntities(w, r.Entities)
	return w.bytes()
}

func encodeChunk(w *writer, c *voxel.Chunk) {
	vec := c.Vector()
	w.putUint64(vec.Len())
	w.putUint8(vec.Width())
	words := vec.Words()
	payload := make([]byte, 0, len(words)*8)
	for _, word := range words {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(word >> (8 * i))
		}
		payload = append(payload, b[:]...)
	}
	w.putBytesLP(payload)
}

func encodeEntities(w *writer, entities map[voxel.EntityID]voxel.Entity) {
	ids := make([]uuid.UUID, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sortUUIDs(ids)
	w.putUint32(uint32(len(ids)))
	for _, id := range ids {
		encodeEntity(w, id, entities[id])
	}
}

func sortUUIDs(ids []uuid.UUID) {
	// Insertion sort: entity counts per region are small (player counts,
	// not block counts), and this avoids pulling in sort for one call site.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && uuidLess(ids[j], ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func encodeEntity(w *writer, id uuid.UUID, e voxel.Entity) {
	w.putUUID(id)
	w.putUint8(uint8(e.Kind))
	switch e.Kind {
	case voxel.EntityPlayer:
		w.putUUID(e.PlayerID)
		for _, f := range e.Position {
			w.putFloat32(f)
		}
		for _, f := range e.Look {
			w.putFloat32(f)
		}
	}
}

// DecodeRegion is the inverse of EncodeRegion. Decoding tolerates any
// entity ordering in the input; only encode guarantees sorted order.
func DecodeRegion(buf []byte) (*voxel.Region, error) {
	r := newReader(buf)
	chunkCount, err := r.getUint32()
	if err != nil {
		return nil, fmt.Errorf("region chunk count: %w", err)
	}
	if int(chunkCount) != spatial.ChunksPerRegion {
		return nil, fmt.Errorf("%w: chunk count %d, want %d", ErrDecode, chunkCount, spatial.ChunksPerRegion)
	}
	chunks := make([]*voxel.Chunk, chunkCount)
	for i := range chunks {
		c, err := decodeChunk(r)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks[i] = c
	}
	entities, err := decodeEntities(r)
	if err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}
	return &voxel.Region{Chunks: chunks, Entities: entities}, nil
}

func decodeChunk(r *reader) (*voxel.Chunk, error) {
	length, err := r.getUint64()
	if err != nil {
		return nil, err
	}
	width, err := r.getUint8()
	if err != nil {
		return nil, err
	}
	payload, err := r.getBytesLP()
	if err != nil {
		return nil, err
	}
	if len(payload)%8 != 0 {
		return nil, fmt.Errorf("%w: chunk payload length %d not word-aligned", ErrDecode, len(payload))
	}
	words := make([]uint64, len(payload)/8)
	for i := range words {
		var word uint64
		for b := 0; b < 8; b++ {
			word |= uint64(payload[i*8+b]) << (8 * b)
		}
		words[i] = word
	}
	return voxel.ChunkFromVector(voxel.NewPackedVectorFromWords(length, width, words)), nil
}

func decodeEntities(r *reader) (map[voxel.EntityID]voxel.Entity, error) {
	count, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	out := make(map[voxel.EntityID]voxel.Entity, count)
	for i := uint32(0); i < count; i++ {
		id, e, err := decodeEntity(r)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		out[id] = e
	}
	return out, nil
}

func decodeEntity(r *reader) (uuid.UUID, voxel.Entity, error) {
	id, err := r.getUUID()
	if err != nil {
		return uuid.UUID{}, voxel.Entity{}, err
	}
	kind, err := r.getUint8()
	if err != nil {
		return uuid.UUID{}, voxel.Entity{}, err
	}
	switch voxel.EntityKind(kind) {
	case voxel.EntityPlayer:
		playerID, err := r.getUUID()
		if err != nil {
			return uuid.UUID{}, voxel.Entity{}, err
		}
		var position [3]float32
		for i := range position {
			position[i], err = r.getFloat32()
			if err != nil {
				return uuid.UUID{}, voxel.Entity{}, err
			}
		}
		var look [2]float32
		for i := range look {
			look[i], err = r.getFloat32()
			if err != nil {
				return uuid.UUID{}, voxel.Entity{}, err
			}
		}
		return id, voxel.Entity{Kind: voxel.EntityPlayer, PlayerID: playerID, Position: position, Look: look}, nil
	default:
		return uuid.UUID{}, voxel.Entity{}, fmt.Errorf("%w: unknown entity kind %d", ErrDecode, kind)
	}
}

// --- Operation --------------------------------------------------------------

// EncodeOperation encodes one closed-enum mutation: a tag byte selecting
// the variant, followed by that variant's payload.
func EncodeOperation(op voxel.Operation) []byte {
	w := newWriter()
	writeOperation(w, op)
	return w.bytes()
}

func writeOperation(w *writer, op voxel.Operation) {
	w.putUint8(uint8(op.Kind))
	switch op.Kind {
	case voxel.OpSetBlocks:
		writeBlockMap(w, op.SetBlocks)
	case voxel.OpInsertEntity:
		encodeEntities(w, op.InsertEntity)
	case voxel.OpRemoveEntity:
		writeIDSet(w, op.RemoveEntity)
	}
}

func writeBlockMap(w *writer, blocks map[spatial.RegionPosition]voxel.Block) {
	w.putUint32(uint32(len(blocks)))
	for pos, block := range blocks {
		w.putUint64(pos.X)
		w.putUint64(pos.Y)
		w.putUint64(pos.Z)
		w.putUint64(uint64(block))
	}
}

func writeIDSet(w *writer, ids map[voxel.EntityID]struct{}) {
	w.putUint32(uint32(len(ids)))
	for id := range ids {
		w.putUUID(id)
	}
}

// DecodeOperation is the inverse of EncodeOperation.
func DecodeOperation(buf []byte) (voxel.Operation, error) {
	r := newReader(buf)
	op, err := readOperation(r)
	if err != nil {
		return voxel.Operation{}, err
	}
	if !r.atEnd() {
		return voxel.Operation{}, fmt.Errorf("%w: trailing bytes after operation", ErrDecode)
	}
	return op, nil
}

func readOperation(r *reader) (voxel.Operation, error) {
	kind, err := r.getUint8()
	if err != nil {
		return voxel.Operation{}, err
	}
	switch voxel.OperationKind(kind) {
	case voxel.OpSetBlocks:
		blocks, err := readBlockMap(r)
		if err != nil {
			return voxel.Operation{}, err
		}
		return voxel.NewSetBlocks(blocks), nil
	case voxel.OpInsertEntity:
		entities, err := decodeEntities(r)
		if err != nil {
			return voxel.Operation{}, err
		}
		return voxel.NewInsertEntity(entities), nil
	case voxel.OpRemoveEntity:
		ids, err := readIDSet(r)
		if err != nil {
			return voxel.Operation{}, err
		}
		return voxel.NewRemoveEntity(ids), nil
	default:
		return voxel.Operation{}, fmt.Errorf("%w: unknown operation kind %d", ErrDecode, kind)
	}
}

func readBlockMap(r *reader) (map[spatial.RegionPosition]voxel.Block, error) {
	count, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	out := make(map[spatial.RegionPosition]voxel.Block, count)
	for i := uint32(0); i < count; i++ {
		x, err := r.getUint64()
		if err != nil {
			return nil, err
		}
		y, err := r.getUint64()
		if err != nil {
			return nil, err
		}
		z, err := r.getUint64()
		if err != nil {
			return nil, err
		}
		block, err := r.getUint64()
		if err != nil {
			return nil, err
		}
		out[spatial.NewRegionPosition(x, y, z)] = voxel.Block(block)
	}
	return out, nil
}

func readIDSet(r *reader) (map[voxel.EntityID]struct{}, error) {
	count, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	out := make(map[voxel.EntityID]struct{}, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.getUUID()
		if err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, nil
}

// --- Request / Response ------------------------------------------------------

// RequestKind tags the closed set of client-to-session requests.
type RequestKind uint8

const (
	RequestSubscribe RequestKind = iota
	RequestPerform
)

// Request is one frame sent from a client to its session.
type Request struct {
	Kind RequestKind

	// Subscribe carries the region ids the client wants to join. Perform
	// carries, per region, the ordered list of operations to apply.
	Subscribe []uint64
	Perform   map[uint64][]voxel.Operation
}

func NewSubscribeRequest(regionIDs []uint64) Request {
	return Request{Kind: RequestSubscribe, Subscribe: regionIDs}
}

func NewPerformRequest(ops map[uint64][]voxel.Operation) Request {
	return Request{Kind: RequestPerform, Perform: ops}
}

// EncodeRequest encodes a Request frame.
func EncodeRequest(req Request) []byte {
	w := newWriter()
	w.putUint8(uint8(req.Kind))
	switch req.Kind {
	case RequestSubscribe:
		w.putUint32(uint32(len(req.Subscribe)))
		for _, id := range req.Subscribe {
			w.putUint64(id)
		}
	case RequestPerform:
		ids := sortedRegionIDs(req.Perform)
		w.putUint32(uint32(len(ids)))
		for _, regionID := range ids {
			ops := req.Perform[regionID]
			w.putUint64(regionID)
			w.putUint32(uint32(len(ops)))
			for _, op := range ops {
				writeOperation(w, op)
			}
		}
	}
	return w.bytes()
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(buf []byte) (Request, error) {
	r := newReader(buf)
	kind, err := r.getUint8()
	if err != nil {
		return Request{}, err
	}
	switch RequestKind(kind) {
	case RequestSubscribe:
		count, err := r.getUint32()
		if err != nil {
			return Request{}, err
		}
		ids := make([]uint64, count)
		for i := range ids {
			ids[i], err = r.getUint64()
			if err != nil {
				return Request{}, err
			}
		}
		return NewSubscribeRequest(ids), nil
	case RequestPerform:
		regionCount, err := r.getUint32()
		if err != nil {
			return Request{}, err
		}
		perform := make(map[uint64][]voxel.Operation, regionCount)
		for i := uint32(0); i < regionCount; i++ {
			regionID, err := r.getUint64()
			if err != nil {
				return Request{}, err
			}
			opCount, err := r.getUint32()
			if err != nil {
				return Request{}, err
			}
			ops := make([]voxel.Operation, opCount)
			for j := range ops {
				ops[j], err = readOperation(r)
				if err != nil {
					return Request{}, err
				}
			}
			perform[regionID] = ops
		}
		return NewPerformRequest(perform), nil
	default:
		return Request{}, fmt.Errorf("%w: unknown request kind %d", ErrDecode, kind)
	}
}

// ResponseKind tags the closed set of session-to-client responses.
type ResponseKind uint8

const (
	// ResponsePublish carries, for every region with activity this tick,
	// the batch of operations applied since the last tick by clients
	// other than the recipient. A region with no new procedures still
	// contributes an entry with an empty operation list.
	ResponsePublish ResponseKind = iota
	// ResponseRefresh carries a full snapshot of one or more regions,
	// sent on subscribe and whenever a subscriber falls too far behind
	// the fan-out to catch up incrementally.
	ResponseRefresh
)

// Response is one frame sent from a session to its client. Publish and
// Refresh are both keyed by region id, matching the wire grammar's
// map<RegionId, ...> shape; exactly one of the two is populated,
// selected by Kind.
type Response struct {
	Kind ResponseKind

	Publish map[uint64][]voxel.Operation
	Refresh map[uint64]*voxel.Region
}

func NewPublishResponse(batch map[uint64][]voxel.Operation) Response {
	return Response{Kind: ResponsePublish, Publish: batch}
}

func NewRefreshResponse(regions map[uint64]*voxel.Region) Response {
	return Response{Kind: ResponseRefresh, Refresh: regions}
}

// sortedRegionIDs returns ids in ascending order, so encoding a map is
// deterministic regardless of Go's randomized map iteration.
func sortedRegionIDs[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// EncodeResponse encodes a Response frame.
func EncodeResponse(resp Response) []byte {
	w := newWriter()
	w.putUint8(uint8(resp.Kind))
	switch resp.Kind {
	case ResponsePublish:
		ids := sortedRegionIDs(resp.Publish)
		w.putUint32(uint32(len(ids)))
		for _, id := range ids {
			ops := resp.Publish[id]
			w.putUint64(id)
			w.putUint32(uint32(len(ops)))
			for _, op := range ops {
				writeOperation(w, op)
			}
		}
	case ResponseRefresh:
		ids := sortedRegionIDs(resp.Refresh)
		w.putUint32(uint32(len(ids)))
		for _, id := range ids {
			w.putUint64(id)
			w.putBytesLP(EncodeRegion(resp.Refresh[id]))
		}
	}
	return w.bytes()
}

// DecodeResponse is the inverse of EncodeResponse.
func DecodeResponse(buf []byte) (Response, error) {
	r := newReader(buf)
	kind, err := r.getUint8()
	if err != nil {
		return Response{}, err
	}
	switch ResponseKind(kind) {
	case ResponsePublish:
		regionCount, err := r.getUint32()
		if err != nil {
			return Response{}, err
		}
		batch := make(map[uint64][]voxel.Operation, regionCount)
		for i := uint32(0); i < regionCount; i++ {
			regionID, err := r.getUint64()
			if err != nil {
				return Response{}, err
			}
			opCount, err := r.getUint32()
			if err != nil {
				return Response{}, err
			}
			ops := make([]voxel.Operation, opCount)
			for j := range ops {
				ops[j], err = readOperation(r)
				if err != nil {
					return Response{}, err
				}
			}
			batch[regionID] = ops
		}
		return NewPublishResponse(batch), nil
	case ResponseRefresh:
		regionCount, err := r.getUint32()
		if err != nil {
			return Response{}, err
		}
		regions := make(map[uint64]*voxel.Region, regionCount)
		for i := uint32(0); i < regionCount; i++ {
			regionID, err := r.getUint64()
			if err != nil {
				return Response{}, err
			}
			payload, err := r.getBytesLP()
			if err != nil {
				return Response{}, err
			}
			region, err := DecodeRegion(payload)
			if err != nil {
				return Response{}, err
			}
			regions[regionID] = region
		}
		return NewRefreshResponse(regions), nil
	default:
		return Response{}, fmt.Errorf("%w: unknown response kind %d", ErrDecode, kind)
	}
}
