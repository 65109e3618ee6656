// Package clip is the animation clip table consumed by the blend engine.
//
// The blend engine only needs to resolve clips by name, follow remapping
// (localization or variant overlays) and sample a joint channel at a phase.
// Table is that contract; MemTable is an in-memory implementation used by
// tools and tests.
package clip

import (
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// ChannelID identifies a joint channel within a skeleton.
type ChannelID uint32

// JointPose is the local transform of one joint.
type JointPose struct {
	Translation math.Vec3
	Rotation    math.Quat
}

// IdentityPose returns a pose with no offset and no rotation.
func IdentityPose() JointPose {
	return JointPose{Rotation: math.QuatIdentity()}
}

// Lerp blends two poses, lerping translation and slerping rotation.
func (p JointPose) Lerp(other JointPose, t float32) JointPose {
	return JointPose{
		Translation: p.Translation.Lerp(other.Translation, t),
		Rotation:    p.Rotation.Slerp(other.Rotation, t),
	}
}

// Clip is a resolved animation clip.
type Clip struct {
	Name      string
	NumFrames int
	FrameRate float32
	Looping   bool

	// Channels holds one sampled pose per frame for each joint channel.
	Channels map[ChannelID][]JointPose
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float32 {
	if c == nil || c.FrameRate <= 0 || c.NumFrames < 2 {
		return 0
	}
	return float32(c.NumFrames-1) / c.FrameRate
}

// PhaseForFrame converts an authored frame into a phase in [0,1].
// A missing clip yields -1.
func PhaseForFrame(c *Clip, frame float32) float32 {
	if c == nil {
		return -1
	}
	if c.NumFrames < 2 {
		return 0
	}
	return math.Clamp01(frame / float32(c.NumFrames-1))
}

// FrameForPhase converts a phase into a fractional sample frame.
func FrameForPhase(c *Clip, phase float32) float32 {
	if c == nil || c.NumFrames < 2 {
		return 0
	}
	return math.Clamp01(phase) * float32(c.NumFrames-1)
}

// Lookup is a cached name resolution. It stays valid until the table
// generation moves.
type Lookup struct {
	Name       string
	Clip       *Clip
	Generation uint64
}

// Valid reports whether the lookup resolved to a clip.
func (l Lookup) Valid() bool {
	return l.Clip != nil
}

// Table resolves and samples animation clips.
type Table interface {
	// LookupAnim resolves a clip by name, following overlays. Returns nil
	// when the clip does not exist.
	LookupAnim(name string) *Clip
	// LookupAnimCached returns prev unchanged when its generation is
	// current, or re-resolves it otherwise.
	LookupAnimCached(prev Lookup) Lookup
	// EvaluateChannel samples one joint channel at a phase.
	EvaluateChannel(c *Clip, phase float32, ch ChannelID) (JointPose, bool)
	// Generation changes whenever any lookup could resolve differently.
	Generation() uint64
}
