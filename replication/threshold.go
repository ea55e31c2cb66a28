package replication

import (
	"math"

	"github.com/automoto/netxform/shared/posemath"
)

// ThresholdPolicy decides whether a channel moved far enough to be sent.
type ThresholdPolicy interface {
	PositionExceeds(axis posemath.Axis, last, current float64) bool
	// AngleExceeds compares Euler angles in degrees.
	AngleExceeds(axis posemath.Axis, last, current float64) bool
	RotationExceeds(last, current posemath.Quat) bool
	ScaleExceeds(axis posemath.Axis, last, current float64) bool
}

// Thresholds is the default policy: one strict threshold per category.
type Thresholds struct {
	Position float64
	RotAngle float64 // Degrees
	Scale    float64
}

func (t Thresholds) PositionExceeds(_ posemath.Axis, last, current float64) bool {
	return math.Abs(current-last) > t.Position
}

func (t Thresholds) AngleExceeds(_ posemath.Axis, last, current float64) bool {
	return math.Abs(posemath.DeltaAngle(last, current)) > t.RotAngle
}

func (t Thresholds) RotationExceeds(last, current posemath.Quat) bool {
	return posemath.AngleBetween(last, current) > t.RotAngle
}

func (t Thresholds) ScaleExceeds(_ posemath.Axis, last, current float64) bool {
	return math.Abs(current-last) > t.Scale
}
