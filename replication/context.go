package replication

// Context carries the per-tick values every call needs, replacing global
// access to a network manager.
type Context struct {
	Tick       uint32
	ServerTime float64 // Seconds, authority clock as estimated locally
	LocalTime  float64
	DeltaTime  float64

	// AnticipationCounter is the local anticipation counter on an observer,
	// and the newest applied request counter on the authority.
	AnticipationCounter uint64
	// LastAnticipationAck is the counter acknowledged by the envelope being received.
	LastAnticipationAck uint64
}
