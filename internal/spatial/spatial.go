// Package spatial linearizes and delinearizes the three coordinate scales
// the voxel world is addressed at — chunk-local, region-local, and global —
// and provides the Euclidean component-wise arithmetic used to move between
// them. Every function here is pure: no state, no I/O, no allocation beyond
// the returned value.
//
// The three position types are deliberately distinct Go types rather than a
// shared [3]int64 alias, so that chunk-scale and region-scale values can
// never be added to one another by accident; the compiler rejects it.
package spatial

// Axis sizes. These are the only place the world's scale is declared;
// everything else in the module derives from them. Changing the world's
// scale is a one-line edit here, not a code change elsewhere.
const (
	ChunkAxis = 8
	RegionAxis = 8
	WorldAxis = 1_000_000

	ChunkSize       = ChunkAxis * ChunkAxis * ChunkAxis
	RegionSize      = RegionAxis * RegionAxis * RegionAxis
	ChunksPerRegion = RegionSize / ChunkSize
)

// ChunkPosition is a position inside one chunk, each component in
// [0, ChunkAxis).
type ChunkPosition struct{ X, Y, Z uint64 }

// RegionPosition is a position inside one region, each component in
// [0, RegionAxis*ChunkAxis).
type RegionPosition struct{ X, Y, Z uint64 }

// GlobalPosition is a position in the unbounded signed world space.
type GlobalPosition struct{ X, Y, Z int64 }

func NewChunkPosition(x, y, z uint64) ChunkPosition   { return ChunkPosition{x, y, z} }
func NewRegionPosition(x, y, z uint64) RegionPosition { return RegionPosition{x, y, z} }
func NewGlobalPosition(x, y, z int64) GlobalPosition  { return GlobalPosition{x, y, z} }

// Linearize maps a ChunkPosition to its linear index within one chunk:
// (z*ChunkAxis + y)*ChunkAxis + x. This ordering is the chunk's canonical
// storage order and must never change.
func (p ChunkPosition) Linearize() uint64 {
	return (p.Z*ChunkAxis+p.Y)*ChunkAxis + p.X
}

// DelinearizeChunk is the inverse of ChunkPosition.Linearize.
func DelinearizeChunk(index uint64) ChunkPosition {
	z := index / (ChunkAxis * ChunkAxis)
	index -= z * ChunkAxis * ChunkAxis
	y := index / ChunkAxis
	x := index % ChunkAxis
	return ChunkPosition{x, y, z}
}

// Linearize maps a RegionPosition, expressed in chunk-scale coordinates
// (i.e. already divided by ChunkAxis), to its linear chunk index within a
// region: (z*RegionAxis + y)*RegionAxis + x.
func (p RegionPosition) Linearize() uint64 {
	return (p.Z*RegionAxis+p.Y)*RegionAxis + p.X
}

// DelinearizeRegion is the inverse of RegionPosition.Linearize.
func DelinearizeRegion(index uint64) RegionPosition {
	z := index / (RegionAxis * RegionAxis)
	index -= z * RegionAxis * RegionAxis
	y := index / RegionAxis
	x := index % RegionAxis
	return RegionPosition{x, y, z}
}

// Linearize maps a GlobalPosition, expressed in region-scale coordinates
// and already recentered at the origin, to a region id:
// (z*WorldAxis + y)*WorldAxis + x.
func (p GlobalPosition) Linearize() uint64 {
	return uint64(p.Z*WorldAxis+p.Y)*WorldAxis + uint64(p.X)
}

// --- Euclidean component-wise arithmetic -----------------------------------

func (p RegionPosition) Add(q RegionPosition) RegionPosition {
	return RegionPosition{p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

func (p RegionPosition) Sub(q RegionPosition) RegionPosition {
	return RegionPosition{p.X - q.X, p.Y - q.Y, p.Z - q.Z}
}

// DivScalar performs component-wise Euclidean division by a positive
// scalar. Operands here are unsigned so ordinary division already is
// Euclidean.
func (p RegionPosition) DivScalar(d uint64) RegionPosition {
	return RegionPosition{p.X / d, p.Y / d, p.Z / d}
}

// ModScalar performs component-wise Euclidean remainder by a positive
// scalar.
func (p RegionPosition) ModScalar(d uint64) RegionPosition {
	return RegionPosition{p.X % d, p.Y % d, p.Z % d}
}

// ToChunkPosition returns the chunk-local position of a region position:
// pos mod ChunkAxis.
func (p RegionPosition) ToChunkPosition() ChunkPosition {
	local := p.ModScalar(ChunkAxis)
	return ChunkPosition{local.X, local.Y, local.Z}
}

// ToChunkID returns the id (linear index) of the chunk that contains this
// region position: linearize(pos / ChunkAxis, RegionAxis).
func (p RegionPosition) ToChunkID() uint64 {
	return p.DivScalar(ChunkAxis).Linearize()
}

// InBounds reports whether every component of p is within
// [0, RegionAxis*ChunkAxis).
func (p RegionPosition) InBounds() bool {
	const limit = RegionAxis * ChunkAxis
	return p.X < limit && p.Y < limit && p.Z < limit
}

// euclidDivInt64 performs floor division for signed operands, matching
// Rust's div_euclid: the remainder is always non-negative.
func euclidDivInt64(a, b int64) int64 {
	q := a / b
	r := a % b
	if r < 0 {
		if b > 0 {
			q--
		} else {
			q++
		}
	}
	return q
}

// euclidModInt64 performs the non-negative remainder matching
// Rust's rem_euclid.
func euclidModInt64(a, b int64) int64 {
	r := a % b
	if r < 0 {
		if b > 0 {
			r += b
		} else {
			r -= b
		}
	}
	return r
}

// RegionID returns the id of the region containing this global position:
// linearize(floor_div(pos, RegionAxis*ChunkAxis) + WorldAxis/2, WorldAxis).
func (p GlobalPosition) RegionID() uint64 {
	const span = RegionAxis * ChunkAxis
	shifted := GlobalPosition{
		X: euclidDivInt64(p.X, span) + WorldAxis/2,
		Y: euclidDivInt64(p.Y, span) + WorldAxis/2,
		Z: euclidDivInt64(p.Z, span) + WorldAxis/2,
	}
	return shifted.Linearize()
}

// ToRegionPosition returns the region-local position of a global position:
// pos mod (RegionAxis*ChunkAxis), Euclidean.
func (p GlobalPosition) ToRegionPosition() RegionPosition {
	const span = RegionAxis * ChunkAxis
	return RegionPosition{
		X: uint64(euclidModInt64(p.X, span)),
		Y: uint64(euclidModInt64(p.Y, span)),
		Z: uint64(euclidModInt64(p.Z, span)),
	}
}
