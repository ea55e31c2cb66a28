package components

import (
	"github.com/automoto/netxform/shared/posemath"
	"github.com/tanema/gween"
	"github.com/yohamta/donburi"
)

type MoverKind int

const (
	MoverOrbit MoverKind = iota
	MoverSpin
	MoverPulse
	MoverPlatform
	MoverBlink // teleports between two points
)

func (k MoverKind) String() string {
	switch k {
	case MoverOrbit:
		return "orbit"
	case MoverSpin:
		return "spin"
	case MoverPulse:
		return "pulse"
	case MoverPlatform:
		return "platform"
	case MoverBlink:
		return "blink"
	}
	return "unknown"
}

// MoverData drives a host-owned demo entity.
type MoverData struct {
	Kind   MoverKind
	Center posemath.Vec3
	Radius float64
	Speed  float64 // radians or degrees per second, by kind
	Phase  float64

	// Platform travel along Y, one tween per leg.
	Tween    *gween.Tween
	From, To float32

	NextBlink float64 // server time of the next teleport
	Away      bool
}

var Mover = donburi.NewComponentType[MoverData]()
