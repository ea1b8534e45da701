// Package voxel holds the block grid and entity map of one region: the
// packed per-chunk storage (packed.go, block.go), the region-scale
// aggregate that routes cell operations to the right chunk (region.go),
// and the closed Operation/Entity vocabulary applied to a region
// (operation.go, entity.go).
package voxel

import (
	"errors"
	"fmt"

	"higgsd/internal/spatial"
)

// ErrBoundsViolation is returned when an operation references a
// RegionPosition outside [0, RegionAxis*ChunkAxis) on every axis.
var ErrBoundsViolation = errors.New("voxel: region position out of bounds")

// Region is the aggregate of exactly spatial.RegionSize chunks plus the
// entity map. Chunk order is spatial.RegionPosition's own linearization of
// chunk-scale positions.
type Region struct {
	Chunks   []*Chunk
	Entities map[EntityID]Entity
}

// NewRegion returns a default region: spatial.RegionSize chunks, every
// cell Void, no entities.
func NewRegion() *Region {
	chunks := make([]*Chunk, spatial.ChunksPerRegion)
	for i := range chunks {
		chunks[i] = NewChunk(spatial.ChunkSize)
	}
	return &Region{
		Chunks:   chunks,
		Entities: make(map[EntityID]Entity),
	}
}

// Clone returns a deep copy: every chunk is copied and the entity map is
// copied. Used by the replica's log catch-up and by WorkUnit.Snapshot.
func (r *Region) Clone() *Region {
	chunks := make([]*Chunk, len(r.Chunks))
	for i, c := range r.Chunks {
		chunks[i] = c.Clone()
	}
	entities := make(map[EntityID]Entity, len(r.Entities))
	for k, v := range r.Entities {
		entities[k] = v
	}
	return &Region{Chunks: chunks, Entities: entities}
}

// ValidatePositions checks that every key in blocks satisfies the region's
// coordinate bounds, without mutating anything. Callers must validate
// before SetBlocks: SetBlocks itself assumes its input is in-bounds and
// will panic on a chunk-index overflow otherwise.
func ValidatePositions(blocks map[spatial.RegionPosition]Block) error {
	for pos := range blocks {
		if !pos.InBounds() {
			return fmt.Errorf("%w: %+v", ErrBoundsViolation, pos)
		}
	}
	return nil
}

// SetBlocks groups the input cells by chunk id, then forwards each group
// to the corresponding chunk's bulk setter. No operation crosses chunk
// boundaries implicitly.
func (r *Region) SetBlocks(blocks map[spatial.RegionPosition]Block) {
	byChunk := make(map[uint64][]PackedPair)
	for pos, block := range blocks {
		chunkID := pos.ToChunkID()
		local := pos.ToChunkPosition()
		byChunk[chunkID] = append(byChunk[chunkID], PackedPair{
			Index: local.Linearize(),
			Value: uint64(block),
		})
	}
	for chunkID, pairs := range byChunk {
		r.Chunks[chunkID].Set(pairs)
	}
}

// GetBlocks groups the requested positions by chunk id, reads each group
// in bulk, then merges results back, re-keyed by region position.
func (r *Region) GetBlocks(positions []spatial.RegionPosition) map[spatial.RegionPosition]Block {
	byChunk := make(map[uint64][]spatial.RegionPosition)
	for _, pos := range positions {
		chunkID := pos.ToChunkID()
		byChunk[chunkID] = append(byChunk[chunkID], pos)
	}

	out := make(map[spatial.RegionPosition]Block, len(positions))
	for chunkID, group := range byChunk {
		indices := make([]uint64, len(group))
		for i, pos := range group {
			indices[i] = pos.ToChunkPosition().Linearize()
		}
		blocks := r.Chunks[chunkID].Get(indices)
		for i, pos := range group {
			out[pos] = blocks[i]
		}
	}
	return out
}

// InsertEntities unions mapping into the entity map; later (this call)
// wins over anything already present.
func (r *Region) InsertEntities(mapping map[EntityID]Entity) {
	for id, e := range mapping {
		r.Entities[id] = e
	}
}

// RemoveEntities removes the listed ids. Missing ids are ignored.
func (r *Region) RemoveEntities(ids map[EntityID]struct{}) {
	for id := range ids {
		delete(r.Entities, id)
	}
}
