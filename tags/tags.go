package tags

import "github.com/yohamta/donburi"

var (
	// Replicated marks entities that carry a TransformSync.
	Replicated = donburi.NewTag().SetName("Replicated")
	// Owned marks entities this side is the authority for.
	Owned = donburi.NewTag().SetName("Owned")
	Mover = donburi.NewTag().SetName("Mover")
)
