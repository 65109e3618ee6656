// Package library loads gesture definitions from YAML and keeps them current.
package library

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDef is returned for definitions that fail validation.
var ErrInvalidDef = errors.New("invalid gesture definition")

// AltNone selects a definition's base anims instead of an alternative.
const AltNone uint8 = 0xFF

// AnimType picks which clips of each pair a gesture plays.
type AnimType uint8

const (
	AnimSlerp AnimType = iota
	AnimAdditive
	AnimCombo
)

func (t AnimType) String() string {
	switch t {
	case AnimSlerp:
		return "slerp"
	case AnimAdditive:
		return "additive"
	case AnimCombo:
		return "combo"
	default:
		return fmt.Sprintf("AnimType(%d)", uint8(t))
	}
}

// ParseAnimType reads the YAML spelling of an AnimType.
func ParseAnimType(s string) (AnimType, error) {
	switch s {
	case "", "slerp":
		return AnimSlerp, nil
	case "additive":
		return AnimAdditive, nil
	case "combo":
		return AnimCombo, nil
	}
	return 0, fmt.Errorf("%w: unknown anim type %q", ErrInvalidDef, s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *AnimType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := ParseAnimType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t AnimType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// AnimPair is one authored sample of a gesture: the clips to play when aiming
// at (H, V) degrees. A frame range expands the pair into one sample per frame.
type AnimPair struct {
	Partial    string  `yaml:"partial,omitempty" validate:"required_without=Additive"`
	Additive   string  `yaml:"additive,omitempty"`
	H          float32 `yaml:"h" validate:"gte=-180,lte=180"`
	V          float32 `yaml:"v" validate:"gte=-90,lte=90"`
	FrameRange []int   `yaml:"frame_range,omitempty" validate:"omitempty,len=2"`
}

// Anims is a set of samples with an optional hand-authored mesh.
type Anims struct {
	Pairs        []AnimPair `yaml:"pairs" validate:"required,min=1,max=32,dive"`
	ManualMesh   [][]int    `yaml:"manual_mesh,omitempty" validate:"omitempty,dive,len=3"`
	FeatherBlend string     `yaml:"feather_blend,omitempty"`
}

// Alternative replaces a definition's anims while its criteria hold.
type Alternative struct {
	When   map[string]string `yaml:"when" validate:"required,min=1"`
	Sticky bool              `yaml:"sticky,omitempty"`
	Anims  Anims             `yaml:"anims"`
}

// Flags are the procedural features a gesture turns on or off while it plays.
type Flags struct {
	Aiming           bool `yaml:"aiming,omitempty"`
	Looking          bool `yaml:"looking,omitempty"`
	LookDisabled     bool `yaml:"look_disabled,omitempty"`
	AimDisabled      bool `yaml:"aim_disabled,omitempty"`
	WeaponIkDisabled bool `yaml:"weapon_ik_disabled,omitempty"`
	FeedbackDisabled bool `yaml:"feedback_disabled,omitempty"`
	WeaponIkFeather  bool `yaml:"weapon_ik_feather,omitempty"`
}

// Def is one gesture definition.
type Def struct {
	Name          string        `yaml:"name" validate:"required"`
	Type          string        `yaml:"type,omitempty"`
	AnimType      AnimType      `yaml:"anim_type"`
	Wrap360       bool          `yaml:"wrap360,omitempty"`
	ForceLinear   bool          `yaml:"force_linear,omitempty"`
	DetachedPhase bool          `yaml:"detached_phase,omitempty"`
	NoBlendTheta  *float32      `yaml:"no_blend_theta,omitempty"`
	LowLodAnim    string        `yaml:"low_lod_anim,omitempty"`
	Flags         Flags         `yaml:"flags,omitempty"`
	Anims         Anims         `yaml:"anims"`
	Alternatives  []Alternative `yaml:"alternatives,omitempty" validate:"max=254,dive"`
}

// TypeID is the gesture type, defaulting to the name.
func (d *Def) TypeID() string {
	if d.Type != "" {
		return d.Type
	}
	return d.Name
}

// AnimsFor returns the anims for an alternative index, or the base anims for
// AltNone or an index out of range.
func (d *Def) AnimsFor(alt uint8) *Anims {
	if int(alt) < len(d.Alternatives) {
		return &d.Alternatives[alt].Anims
	}
	return &d.Anims
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that every pair carries the clips its
// anim type plays.
func (d *Def) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s: %s failed %q", ErrInvalidDef, d.Name, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidDef, d.Name, err)
	}

	check := func(where string, a *Anims) error {
		for i, p := range a.Pairs {
			if (d.AnimType == AnimSlerp || d.AnimType == AnimCombo) && p.Partial == "" {
				return fmt.Errorf("%w: %s: %s pair %d needs a partial clip for %s", ErrInvalidDef, d.Name, where, i, d.AnimType)
			}
			if (d.AnimType == AnimAdditive || d.AnimType == AnimCombo) && p.Additive == "" {
				return fmt.Errorf("%w: %s: %s pair %d needs an additive clip for %s", ErrInvalidDef, d.Name, where, i, d.AnimType)
			}
		}
		return nil
	}
	if err := check("anims", &d.Anims); err != nil {
		return err
	}
	for i := range d.Alternatives {
		if err := check(fmt.Sprintf("alternative %d", i), &d.Alternatives[i].Anims); err != nil {
			return err
		}
	}
	return nil
}

func (d *Def) clipNames(into map[string]struct{}) {
	add := func(a *Anims) {
		for _, p := range a.Pairs {
			if p.Partial != "" {
				into[p.Partial] = struct{}{}
			}
			if p.Additive != "" {
				into[p.Additive] = struct{}{}
			}
		}
	}
	add(&d.Anims)
	for i := range d.Alternatives {
		add(&d.Alternatives[i].Anims)
	}
	if d.LowLodAnim != "" {
		into[d.LowLodAnim] = struct{}{}
	}
}
