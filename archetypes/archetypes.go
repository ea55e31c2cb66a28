package archetypes

import (
	"github.com/automoto/netxform/components"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/tags"
	"github.com/yohamta/donburi"
)

var (
	Replicated = newArchetype(
		tags.Replicated,
		netcomponents.NetEntity,
		netcomponents.NetPose,
		netcomponents.NetAuthority,
		components.Sync,
	)
)

type archetype struct {
	components []donburi.IComponentType
}

func newArchetype(cs ...donburi.IComponentType) *archetype {
	return &archetype{
		components: cs,
	}
}

func (a *archetype) Spawn(w donburi.World, cs ...donburi.IComponentType) *donburi.Entry {
	all := append(append([]donburi.IComponentType(nil), a.components...), cs...)
	e := w.Entry(w.Create(all...))
	netcomponents.NetPose.SetValue(e, netcomponents.IdentityPoseData())
	return e
}
