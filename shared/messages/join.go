package messages

import "github.com/leap-fish/necs/esync"

// JoinRequest is sent by an observer after connecting.
type JoinRequest struct {
	Version    string
	ClientName string
	SessionID  string
}

// JoinAccepted is sent by the host when a join request is accepted. ServerTime
// lets the observer align its clock before the first pose update arrives.
type JoinAccepted struct {
	NetworkID  esync.NetworkId
	SessionID  string
	ServerName string
	TickRate   int
	ServerTime float64
}

// JoinRejected is sent by the host when a join request is rejected.
type JoinRejected struct {
	Reason string
}
