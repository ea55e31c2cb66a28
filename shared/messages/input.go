package messages

import "github.com/leap-fish/necs/esync"

// PoseRequest is sent by an observer that anticipated a move on an entity it
// does not own. The authority applies it and echoes Sequence back through
// PoseUpdate.AnticipationAck.
type PoseRequest struct {
	NetworkID esync.NetworkId
	Sequence  uint64
	X, Y, Z   float64
	Teleport  bool
}

// NewPoseRequest creates a request for the given entity and counter.
func NewPoseRequest(id esync.NetworkId, seq uint64, x, y, z float64) PoseRequest {
	return PoseRequest{
		NetworkID: id,
		Sequence:  seq,
		X:         x,
		Y:         y,
		Z:         z,
	}
}
