package replica

import (
	"github.com/google/uuid"

	"higgsd/internal/voxel"
)

// ClientID identifies the session that originated a Procedure, so a
// WorkUnit's fan-out can suppress echoing a client's own writes back to
// it.
type ClientID = uuid.UUID

// Procedure is one committed operation tagged with the client that
// originated it. It never crosses the wire directly (wire.Operation does)
// — Procedure exists only between a WorkUnit's writer guard and its
// fan-out subscribers, inside this process.
type Procedure struct {
	ClientID  ClientID
	Operation voxel.Operation
}
