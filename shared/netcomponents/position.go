package netcomponents

import (
	"github.com/automoto/netxform/shared/posemath"
	"github.com/yohamta/donburi"
)

// NetPoseData is the pose written to the presentation layer. On the authority
// it is the live pose; on observers it is the reconstructed one.
type NetPoseData struct {
	Position posemath.Vec3
	Rotation posemath.Quat
	Scale    posemath.Vec3
}

var NetPose = donburi.NewComponentType[NetPoseData]()

// IdentityPoseData is the value new pose components are set to.
func IdentityPoseData() NetPoseData {
	return PoseData(posemath.IdentityPose())
}

func (d NetPoseData) Pose() posemath.Pose {
	return posemath.Pose{Position: d.Position, Rotation: d.Rotation, Scale: d.Scale}
}

func PoseData(p posemath.Pose) NetPoseData {
	return NetPoseData{Position: p.Position, Rotation: p.Rotation, Scale: p.Scale}
}
