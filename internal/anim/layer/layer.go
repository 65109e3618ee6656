package layer

import "github.com/Faultbox/midgard-anim/pkg/math"

// Layer is one animation layer of a character.
type Layer struct {
	Name string
	Pool *Pool

	// Fade is the layer's current contribution in [0,1].
	Fade float32
	// DesiredFade is the value Fade moves toward.
	DesiredFade float32
	fadeRate    float32
}

// NewLayer creates a layer with an instance pool of poolSize.
func NewLayer(name string, poolSize int) *Layer {
	return &Layer{Name: name, Pool: NewPool(poolSize)}
}

// FadeTo starts moving the layer fade toward desired over blendTime seconds.
func (l *Layer) FadeTo(desired, blendTime float32) {
	l.DesiredFade = math.Clamp01(desired)
	if blendTime <= 0 {
		l.Fade = l.DesiredFade
		l.fadeRate = 0
		return
	}
	l.fadeRate = 1 / blendTime
}

// Update advances the layer fade and its instances. It returns the retired
// instances.
func (l *Layer) Update(dt float32) []*Instance {
	if l.Fade != l.DesiredFade {
		step := l.fadeRate * dt
		if step <= 0 {
			l.Fade = l.DesiredFade
		} else if l.Fade < l.DesiredFade {
			l.Fade = min(l.Fade+step, l.DesiredFade)
		} else {
			l.Fade = max(l.Fade-step, l.DesiredFade)
		}
	}
	return l.Pool.Update(dt)
}

// Active reports whether the layer contributes anything.
func (l *Layer) Active() bool {
	return l.Fade > 0 && l.Pool.Len() > 0
}

// Stack is a character's layers, bottom first.
type Stack struct {
	Layers []*Layer
}

// Add appends a layer on top.
func (s *Stack) Add(l *Layer) {
	s.Layers = append(s.Layers, l)
}

// Get returns the named layer or nil.
func (s *Stack) Get(name string) *Layer {
	for _, l := range s.Layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Update advances every layer.
func (s *Stack) Update(dt float32) []*Instance {
	var retired []*Instance
	for _, l := range s.Layers {
		retired = append(retired, l.Update(dt)...)
	}
	return retired
}
