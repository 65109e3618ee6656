package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIslandTransition(t *testing.T) {
	tr := NewIslandTransition(0, DefaultIslandDwell, DefaultIslandTransition)
	step := 100 * time.Millisecond

	tr.Step(1, step)
	tr.Step(1, step)
	assert.False(t, tr.Active(), "dwell not exceeded")
	assert.Equal(t, 0, tr.Current())
	assert.Equal(t, 0, tr.Target())

	tr.Step(1, step)
	assert.True(t, tr.Active())
	assert.Equal(t, 1, tr.Target())
	assert.Equal(t, 0, tr.Current())
	assert.InDelta(t, 0.5, tr.Parameter(), 1e-6)

	tr.Step(1, step)
	assert.False(t, tr.Active())
	assert.Equal(t, 1, tr.Current())
	assert.Equal(t, float32(0), tr.Parameter())
}

func TestIslandTransitionFlicker(t *testing.T) {
	tr := NewIslandTransition(0, DefaultIslandDwell, DefaultIslandTransition)
	for i := 0; i < 20; i++ {
		tr.Step(i%2, 150*time.Millisecond)
		assert.False(t, tr.Active(), "step %d", i)
	}
	assert.Equal(t, 0, tr.Current())
}

func TestIslandTransitionManual(t *testing.T) {
	tr := NewIslandTransition(2, 0, 0)
	assert.False(t, tr.UpdateTransition(time.Millisecond))

	tr.ClosestIsland(0, time.Millisecond)
	assert.True(t, tr.ShouldTransition())

	tr.BeginTransition(0)
	assert.False(t, tr.ShouldTransition())
	assert.Equal(t, float32(1), tr.Parameter())
	assert.True(t, tr.UpdateTransition(0))
	assert.Equal(t, 0, tr.Current())
}
