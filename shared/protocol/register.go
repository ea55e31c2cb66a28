package protocol

import (
	"github.com/automoto/netxform/shared/netcomponents"
	"github.com/leap-fish/necs/esync"
)

// Sync ID constants - ID 1 is reserved by necs for NetworkId
const (
	SyncIDNetEntity uint = 10
)

// RegisterComponents registers the snapshot components with necs.
// This must be called by both host and observer before any network operations.
// Poses are not registered: they travel as encoded state records.
func RegisterComponents() error {
	return esync.RegisterComponent(
		SyncIDNetEntity,
		netcomponents.NetEntityData{},
		netcomponents.NetEntity,
	)
}
