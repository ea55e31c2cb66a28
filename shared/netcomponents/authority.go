package netcomponents

import "github.com/yohamta/donburi"

type NetAuthorityData struct {
	IsAuthority         bool
	LastAnticipationAck uint64
	IsLocal             bool // Client-side only, not synced
}

var NetAuthority = donburi.NewComponentType[NetAuthorityData]()
