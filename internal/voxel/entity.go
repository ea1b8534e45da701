package voxel

import "github.com/google/uuid"

// EntityID identifies one entity within a region's entity map.
type EntityID = uuid.UUID

// EntityKind tags the closed set of entity variants. Only Player exists in
// this generation; the set is closed at schema level and adding a variant
// is a wire-break (see internal/wire).
type EntityKind uint8

const (
	EntityPlayer EntityKind = iota
)

// Entity is a tagged record. The initial and only variant, Player, carries
// a player id, a 3-float position, and a 2-float look vector, matching
// original_source's Entity::Player{player_id, position, look}.
type Entity struct {
	Kind     EntityKind
	PlayerID uuid.UUID
	Position [3]float32
	Look     [2]float32
}

// NewPlayer constructs a Player entity.
func NewPlayer(playerID uuid.UUID, position [3]float32, look [2]float32) Entity {
	return Entity{Kind: EntityPlayer, PlayerID: playerID, Position: position, Look: look}
}
