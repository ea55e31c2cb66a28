package posemath

// Pose is the replicated state of one entity.
type Pose struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

// IdentityPose is the origin with no rotation and unit scale.
func IdentityPose() Pose {
	return Pose{Rotation: Identity(), Scale: One()}
}

// LerpPose blends two poses: linear for position and scale, slerp for rotation.
func LerpPose(a, b Pose, t float64) Pose {
	return Pose{
		Position: Lerp(a.Position, b.Position, t),
		Rotation: SlerpUnclamped(a.Rotation, b.Rotation, t),
		Scale:    Lerp(a.Scale, b.Scale, t),
	}
}
