package gesture

import (
	"time"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

const (
	DefaultIslandDwell      = 200 * time.Millisecond
	DefaultIslandTransition = 200 * time.Millisecond
)

// IslandTransition switches between blend-space islands. The target island
// must stay closest for the dwell time before a transition starts, then the
// two islands cross-fade over the transition duration.
type IslandTransition struct {
	Dwell    time.Duration
	Duration time.Duration

	current int
	closest int
	held    time.Duration

	active  bool
	target  int
	elapsed time.Duration
}

// NewIslandTransition starts on island start.
func NewIslandTransition(start int, dwell, duration time.Duration) *IslandTransition {
	return &IslandTransition{
		Dwell:    dwell,
		Duration: duration,
		current:  start,
		closest:  start,
	}
}

// Current is the island the blend is anchored to.
func (t *IslandTransition) Current() int { return t.current }

// Active reports whether a cross-fade is running.
func (t *IslandTransition) Active() bool { return t.active }

// Target is the island being faded to, or Current when idle.
func (t *IslandTransition) Target() int {
	if t.active {
		return t.target
	}
	return t.current
}

// ClosestIsland records the island nearest the target this frame.
func (t *IslandTransition) ClosestIsland(island int, dt time.Duration) {
	if island != t.closest {
		t.closest = island
		t.held = 0
	}
	t.held += dt
}

// ShouldTransition reports whether another island has been closest for
// longer than the dwell time.
func (t *IslandTransition) ShouldTransition() bool {
	return !t.active && t.closest >= 0 && t.closest != t.current && t.held > t.Dwell
}

// BeginTransition starts fading toward island.
func (t *IslandTransition) BeginTransition(island int) {
	t.active = true
	t.target = island
	t.elapsed = 0
}

// Parameter is the cross-fade weight of the target island in [0, 1].
func (t *IslandTransition) Parameter() float32 {
	if !t.active {
		return 0
	}
	if t.Duration <= 0 {
		return 1
	}
	return math.Clamp01(float32(t.elapsed) / float32(t.Duration))
}

// UpdateTransition advances the fade and reports true once it completes, at
// which point the target becomes current.
func (t *IslandTransition) UpdateTransition(dt time.Duration) bool {
	if !t.active {
		return false
	}
	t.elapsed += dt
	if t.elapsed < t.Duration {
		return false
	}
	t.active = false
	t.current = t.target
	t.elapsed = 0
	return true
}

// Step runs one frame: track the closest island, start a fade when due and
// advance any running fade.
func (t *IslandTransition) Step(closest int, dt time.Duration) {
	t.ClosestIsland(closest, dt)
	if t.ShouldTransition() {
		t.BeginTransition(t.closest)
	}
	t.UpdateTransition(dt)
}
