package replication

import "errors"

var (
	// ErrNotAuthoritative is returned when a non-authority tries to write the pose.
	ErrNotAuthoritative = errors.New("replication: not authoritative")
	// ErrAuthorityReceive is returned when state records are fed to the authority.
	ErrAuthorityReceive = errors.New("replication: authority does not accept state records")
	// ErrNoSender is returned when an authority is configured without a transport.
	ErrNoSender = errors.New("replication: authority needs a sender")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("replication: sync closed")
	// ErrDeltaOutOfRange is returned by a position codec that cannot reach the
	// value from its base; the caller sends a full-precision resync instead.
	ErrDeltaOutOfRange = errors.New("replication: position delta out of codec range")
	// ErrUnseeded is returned when a stateful record arrives before any
	// full-precision position seeded the decoder.
	ErrUnseeded = errors.New("replication: position decoder not seeded")
)
