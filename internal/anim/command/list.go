// Package command turns snapshot trees and layer stacks into a flat list of
// pose commands for the evaluation backend.
//
// Commands address a small stack of pose slots. A leaf evaluates a clip into
// a slot, a blend combines slot Src into slot Dst, and plugins run procedural
// passes (IK, feathering) on a slot.
package command

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
)

// ErrListFull is returned once a list reaches its capacity.
var ErrListFull = errors.New("command list full")

// Op identifies a command.
type Op uint8

const (
	OpEvaluateClip Op = iota
	OpEvaluateEmptyPose
	OpBlend
	OpPlugin
)

func (o Op) String() string {
	switch o {
	case OpEvaluateClip:
		return "evaluate-clip"
	case OpEvaluateEmptyPose:
		return "evaluate-empty-pose"
	case OpBlend:
		return "blend"
	case OpPlugin:
		return "plugin"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Cmd is one pose command. Fields not used by Op are zero.
type Cmd struct {
	Op   Op
	Slot int

	// OpEvaluateClip
	Clip    *clip.Clip
	Phase   float32
	Frame   float32
	Flipped bool

	// OpBlend blends Src into Slot.
	Src      int
	Factor   float32
	Additive bool

	// OpPlugin
	Plugin   string
	Layer    int
	Instance int
	Data     any
}

// List is a bounded command buffer.
type List struct {
	cmds []Cmd
	max  int
}

// NewList creates a list holding at most capacity commands. Zero means
// unbounded.
func NewList(capacity int) *List {
	return &List{cmds: make([]Cmd, 0, max(capacity, 16)), max: capacity}
}

func (l *List) add(c Cmd) error {
	if l.max > 0 && len(l.cmds) >= l.max {
		return ErrListFull
	}
	l.cmds = append(l.cmds, c)
	return nil
}

// AddEvaluateClip samples c at phase into slot.
func (l *List) AddEvaluateClip(slot int, c *clip.Clip, phase float32, flipped bool) error {
	return l.add(Cmd{
		Op:      OpEvaluateClip,
		Slot:    slot,
		Clip:    c,
		Phase:   phase,
		Frame:   clip.FrameForPhase(c, phase),
		Flipped: flipped,
	})
}

// AddEvaluateEmptyPose writes the bind pose into slot.
func (l *List) AddEvaluateEmptyPose(slot int) error {
	return l.add(Cmd{Op: OpEvaluateEmptyPose, Slot: slot})
}

// AddBlend blends slot src into slot dst.
func (l *List) AddBlend(dst, src int, factor float32, additive bool) error {
	return l.add(Cmd{Op: OpBlend, Slot: dst, Src: src, Factor: factor, Additive: additive})
}

// AddPlugin runs a named procedural pass on slot.
func (l *List) AddPlugin(name string, slot, layerIndex, instanceIndex int, data any) error {
	return l.add(Cmd{
		Op:       OpPlugin,
		Slot:     slot,
		Plugin:   name,
		Layer:    layerIndex,
		Instance: instanceIndex,
		Data:     data,
	})
}

// Cmds returns the buffered commands.
func (l *List) Cmds() []Cmd { return l.cmds }

// Len returns the number of commands.
func (l *List) Len() int { return len(l.cmds) }

// Reset empties the list for reuse.
func (l *List) Reset() {
	clear(l.cmds)
	l.cmds = l.cmds[:0]
}

// Count returns how many commands have op.
func (l *List) Count(op Op) int {
	n := 0
	for _, c := range l.cmds {
		if c.Op == op {
			n++
		}
	}
	return n
}
