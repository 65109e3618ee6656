// Package config handles animation runtime configuration loading and management.
package config

import "time"

// Config holds all runtime settings.
type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	Anim         AnimConfig         `yaml:"anim"`
	GestureCache GestureCacheConfig `yaml:"gesture_cache"`
	Gesture      GestureConfig      `yaml:"gesture"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Debug        DebugConfig        `yaml:"debug"`
	Library      LibraryConfig      `yaml:"library"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" validate:"oneof=debug info warn error"`
	LogFile string `yaml:"log_file"`
}

// AnimConfig sizes the per-instance snapshot arenas and pools.
type AnimConfig struct {
	NodeHeapCapacity int     `yaml:"node_heap_capacity" validate:"min=1,max=65535"`
	InstancePoolSize int     `yaml:"instance_pool_size" validate:"min=1,max=64"`
	MaxLayers        int     `yaml:"max_layers" validate:"min=1,max=32"`
	MaxTreeDepth     int     `yaml:"max_tree_depth" validate:"min=1"`
	BlendEpsilon     float32 `yaml:"blend_epsilon" validate:"gte=0,lt=0.5"`
}

// GestureCacheConfig holds the gesture cache capacity and eviction policy.
// Eviction starts once occupancy reaches EvictionTriggerMax and stops once it
// drops to EvictionTriggerMin.
type GestureCacheConfig struct {
	MaxEntries         int     `yaml:"max_entries" validate:"min=1"`
	EvictionTriggerMin float32 `yaml:"eviction_trigger_min" validate:"gte=0,lte=1,ltefield=EvictionTriggerMax"`
	EvictionTriggerMax float32 `yaml:"eviction_trigger_max" validate:"gte=0,lte=1"`
	MinEntryAgeFrames  uint64  `yaml:"min_entry_age_frames"`
	AlwaysTryEviction  bool    `yaml:"always_try_eviction"`
}

// GestureConfig holds gesture targeting and triangulation tuning.
type GestureConfig struct {
	SpringConstant          float32       `yaml:"spring_constant" validate:"gt=0"`
	AimSpringConstant       float32       `yaml:"aim_spring_constant" validate:"gt=0"`
	ReducedSpringConstant   float32       `yaml:"reduced_spring_constant" validate:"gt=0"`
	SpringDampingRatio      float32       `yaml:"spring_damping_ratio" validate:"gt=0"`
	SpringDelay             time.Duration `yaml:"spring_delay"`
	IslandLinkThresholdDeg  float32       `yaml:"island_link_threshold_deg" validate:"gte=0"`
	IslandDwell             time.Duration `yaml:"island_dwell"`
	IslandTransition        time.Duration `yaml:"island_transition" validate:"gt=0"`
	LinearAngleThresholdDeg float32       `yaml:"linear_angle_threshold_deg" validate:"gte=0"`
	DuplicatePointTolerance float32       `yaml:"duplicate_point_tolerance" validate:"gte=0"`
	MinTriangleArea         float32       `yaml:"min_triangle_area" validate:"gte=0"`
}

// SchedulerConfig holds the per-frame job pool settings.
type SchedulerConfig struct {
	Workers int `yaml:"workers" validate:"min=1"`
}

// DebugConfig controls diagnostic reporting.
type DebugConfig struct {
	FinalBuild           bool    `yaml:"final_build"`
	LoudReportsPerSecond float64 `yaml:"loud_reports_per_second" validate:"gte=0"`
	RingBufferSize       int     `yaml:"ring_buffer_size" validate:"min=1"`
	// MetricsAddr is where animd serves Prometheus metrics. Empty disables.
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// LibraryConfig points at the gesture definition file.
type LibraryConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
	// ClipDir holds ACT sprite files imported into the clip table.
	ClipDir string `yaml:"clip_dir"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Anim: AnimConfig{
			NodeHeapCapacity: 256,
			InstancePoolSize: 8,
			MaxLayers:        8,
			MaxTreeDepth:     64,
			BlendEpsilon:     0.0001,
		},
		GestureCache: GestureCacheConfig{
			MaxEntries:         128,
			EvictionTriggerMin: 0.75,
			EvictionTriggerMax: 0.9,
			MinEntryAgeFrames:  3,
		},
		Gesture: GestureConfig{
			SpringConstant:          8.0,
			AimSpringConstant:       20.0,
			ReducedSpringConstant:   2.0,
			SpringDampingRatio:      1.0,
			IslandDwell:             200 * time.Millisecond,
			IslandTransition:        200 * time.Millisecond,
			LinearAngleThresholdDeg: 3.0,
			DuplicatePointTolerance: 0.0001,
			MinTriangleArea:         0.1,
		},
		Scheduler: SchedulerConfig{
			Workers: 4,
		},
		Debug: DebugConfig{
			FinalBuild:           false,
			LoudReportsPerSecond: 5,
			RingBufferSize:       256,
		},
	}
}
