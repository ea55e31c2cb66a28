package systems

import (
	"errors"

	"github.com/automoto/netxform/anticipation"
	"github.com/automoto/netxform/components"
	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/network"
	"github.com/automoto/netxform/replication"
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/automoto/netxform/shared/posemath"
	"github.com/automoto/netxform/tags"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
)

// ErrUnknownEntity is returned for a network id with no live entity.
var ErrUnknownEntity = errors.New("systems: unknown network entity")

// SyncSettings describe how engines are built for entities.
type SyncSettings struct {
	Config       config.SyncConfig
	Anticipation bool
	OnReconcile  anticipation.ReconcileFunc[posemath.Pose]
}

// EntityConfig returns the profile for one entity. The fold threshold comes
// from the authority so both codec ends agree.
func (s SyncSettings) EntityConfig(data netcomponents.NetEntityData) config.SyncConfig {
	cfg := s.Config
	if data.FoldThreshold > 0 {
		cfg.MaxDeltaBeforeAdjustment = data.FoldThreshold
	}
	return cfg
}

// AttachSync builds the TransformSync for entry from its NetEntity and
// NetPose. out is used when this side is the authority.
func AttachSync(entry *donburi.Entry, id esync.NetworkId, settings SyncSettings, authority bool, out network.Outbox, now float64) error {
	data := netcomponents.NetEntity.Get(entry)
	pose := netcomponents.NetPose.Get(entry).Pose()
	acks := &components.AckState{}

	opts := replication.Options{
		Config:       settings.EntityConfig(*data),
		Authority:    authority,
		Initial:      pose,
		InitialTime:  now,
		Anticipation: settings.Anticipation && !authority,
		OnReconcile:  settings.OnReconcile,
	}
	if out != nil {
		opts.Sender = poseSender(id, out, acks)
	}
	engine, err := replication.NewTransformSync(opts)
	if err != nil {
		return err
	}

	components.Sync.SetValue(entry, components.SyncData{Engine: engine, Acks: acks})
	netcomponents.NetAuthority.SetValue(entry, netcomponents.NetAuthorityData{IsAuthority: authority, IsLocal: authority})
	setOwned(entry, authority)
	return nil
}

func poseSender(id esync.NetworkId, out network.Outbox, acks *components.AckState) network.PoseSender {
	return network.PoseSender{
		ID:  id,
		Out: out,
		Ack: func() uint64 { return acks.Applied },
	}
}

// SetOwnership moves authority over entry to or away from this side. The
// pose is the agreed reset point.
func SetOwnership(entry *donburi.Entry, id esync.NetworkId, owned bool, out network.Outbox, pose posemath.Pose, now float64) error {
	if !entry.HasComponent(components.Sync) {
		return ErrUnknownEntity
	}
	s := components.Sync.Get(entry)
	if owned && out != nil {
		s.Engine.SetSender(poseSender(id, out, s.Acks))
	}
	if err := s.Engine.SetAuthority(owned, pose, now); err != nil {
		return err
	}
	netcomponents.NetPose.SetValue(entry, netcomponents.PoseData(pose))
	auth := netcomponents.NetAuthority.Get(entry)
	auth.IsAuthority = owned
	auth.IsLocal = owned
	setOwned(entry, owned)
	return nil
}

// CloseSync closes the entity's engine, abandoning pending closeouts and blends.
func CloseSync(entry *donburi.Entry) {
	if !entry.HasComponent(components.Sync) {
		return
	}
	if engine := components.Sync.Get(entry).Engine; engine != nil && !engine.Closed() {
		_ = engine.Close()
	}
}

func setOwned(entry *donburi.Entry, owned bool) {
	switch has := entry.HasComponent(tags.Owned); {
	case owned && !has:
		entry.AddComponent(tags.Owned)
	case !owned && has:
		entry.RemoveComponent(tags.Owned)
	}
}

// FindEntry returns the live entry for a network id.
func FindEntry(w donburi.World, id esync.NetworkId) (*donburi.Entry, bool) {
	entity := esync.FindByNetworkId(w, id)
	if !w.Valid(entity) {
		return nil, false
	}
	return w.Entry(entity), true
}
