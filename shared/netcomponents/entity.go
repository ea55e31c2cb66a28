package netcomponents

import "github.com/yohamta/donburi"

// NetEntityData describes a replicated entity in world snapshots. Pose data
// travels separately as PoseUpdate messages.
type NetEntityData struct {
	Kind    string
	OwnerID string

	SpawnX, SpawnY, SpawnZ float64

	// FoldThreshold is the authority's half-precision fold threshold. Both
	// codec ends must use the same value.
	FoldThreshold float64
}

var NetEntity = donburi.NewComponentType[NetEntityData]()
