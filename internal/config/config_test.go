package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Anim defaults
	if cfg.Anim.NodeHeapCapacity != 256 {
		t.Errorf("expected node heap capacity 256, got %d", cfg.Anim.NodeHeapCapacity)
	}
	if cfg.Anim.InstancePoolSize != 8 {
		t.Errorf("expected instance pool size 8, got %d", cfg.Anim.InstancePoolSize)
	}
	if cfg.Anim.MaxTreeDepth != 64 {
		t.Errorf("expected max tree depth 64, got %d", cfg.Anim.MaxTreeDepth)
	}

	// Cache defaults
	if cfg.GestureCache.MaxEntries != 128 {
		t.Errorf("expected 128 cache entries, got %d", cfg.GestureCache.MaxEntries)
	}
	if cfg.GestureCache.EvictionTriggerMin >= cfg.GestureCache.EvictionTriggerMax {
		t.Errorf("expected trigger min < max, got %v >= %v",
			cfg.GestureCache.EvictionTriggerMin, cfg.GestureCache.EvictionTriggerMax)
	}
	if cfg.GestureCache.MinEntryAgeFrames != 3 {
		t.Errorf("expected min entry age 3 frames, got %d", cfg.GestureCache.MinEntryAgeFrames)
	}

	// Gesture defaults
	if cfg.Gesture.IslandDwell != 200*time.Millisecond {
		t.Errorf("expected island dwell 200ms, got %v", cfg.Gesture.IslandDwell)
	}
	if cfg.Gesture.IslandTransition != 200*time.Millisecond {
		t.Errorf("expected island transition 200ms, got %v", cfg.Gesture.IslandTransition)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "anim.yaml")

	yamlContent := `
anim:
  node_heap_capacity: 512
  max_tree_depth: 32

gesture_cache:
  max_entries: 16
  eviction_trigger_min: 0.5
  eviction_trigger_max: 0.8
  always_try_eviction: true

gesture:
  island_dwell: 350ms
  spring_constant: 4.5

scheduler:
  workers: 2

debug:
  final_build: true

logging:
  level: "debug"
  log_file: "anim.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Anim.NodeHeapCapacity != 512 {
		t.Errorf("expected node heap capacity 512, got %d", cfg.Anim.NodeHeapCapacity)
	}
	if cfg.Anim.MaxTreeDepth != 32 {
		t.Errorf("expected max tree depth 32, got %d", cfg.Anim.MaxTreeDepth)
	}
	// Untouched values keep their defaults
	if cfg.Anim.InstancePoolSize != 8 {
		t.Errorf("expected default instance pool size, got %d", cfg.Anim.InstancePoolSize)
	}

	if cfg.GestureCache.MaxEntries != 16 {
		t.Errorf("expected 16 cache entries, got %d", cfg.GestureCache.MaxEntries)
	}
	if !cfg.GestureCache.AlwaysTryEviction {
		t.Error("expected always_try_eviction to be true")
	}

	if cfg.Gesture.IslandDwell != 350*time.Millisecond {
		t.Errorf("expected island dwell 350ms, got %v", cfg.Gesture.IslandDwell)
	}
	if cfg.Gesture.SpringConstant != 4.5 {
		t.Errorf("expected spring constant 4.5, got %f", cfg.Gesture.SpringConstant)
	}

	if cfg.Scheduler.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Scheduler.Workers)
	}
	if !cfg.Debug.FinalBuild {
		t.Error("expected final_build to be true")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "anim.log" {
		t.Errorf("expected log file 'anim.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
anim:
  node_heap_capacity: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/anim.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"trigger min above max", func(c *Config) {
			c.GestureCache.EvictionTriggerMin = 0.95
			c.GestureCache.EvictionTriggerMax = 0.9
		}, true},
		{"trigger above one", func(c *Config) { c.GestureCache.EvictionTriggerMax = 1.5 }, true},
		{"zero cache entries", func(c *Config) { c.GestureCache.MaxEntries = 0 }, true},
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }, true},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"zero island transition", func(c *Config) { c.Gesture.IslandTransition = 0 }, true},
		{"zero dwell allowed", func(c *Config) { c.Gesture.IslandDwell = 0 }, false},
		{"metrics addr", func(c *Config) { c.Debug.MetricsAddr = "localhost:9100" }, false},
		{"metrics addr without port", func(c *Config) { c.Debug.MetricsAddr = "localhost" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "anim.yaml")
	if err := os.WriteFile(configPath, []byte("anim:\n  max_tree_depth: 10\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find anim.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "final flag",
			setup: func() { *flagFinal = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Debug.FinalBuild {
					t.Error("expected final build with final flag")
				}
			},
			teardown: func() { *flagFinal = false },
		},
		{
			name:  "metrics flag",
			setup: func() { *flagMetrics = "127.0.0.1:9100" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Debug.MetricsAddr != "127.0.0.1:9100" {
					t.Errorf("expected metrics addr, got %q", cfg.Debug.MetricsAddr)
				}
			},
			teardown: func() { *flagMetrics = "" },
		},
		{
			name: "workers and cache size",
			setup: func() {
				*flagWorkers = 12
				*flagCacheSize = 4
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Scheduler.Workers != 12 {
					t.Errorf("expected 12 workers, got %d", cfg.Scheduler.Workers)
				}
				if cfg.GestureCache.MaxEntries != 4 {
					t.Errorf("expected 4 cache entries, got %d", cfg.GestureCache.MaxEntries)
				}
			},
			teardown: func() {
				*flagWorkers = 0
				*flagCacheSize = 0
			},
		},
		{
			name: "library flags",
			setup: func() {
				*flagLibrary = "gestures.yaml"
				*flagWatchLib = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Library.Path != "gestures.yaml" || !cfg.Library.Watch {
					t.Errorf("expected watched library gestures.yaml, got %+v", cfg.Library)
				}
			},
			teardown: func() {
				*flagLibrary = ""
				*flagWatchLib = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "anim.yaml")

	yamlContent := `
anim:
  max_tree_depth: 16
  node_heap_capacity: 64
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagMaxDepth = 48
	defer func() {
		*flagConfig = ""
		*flagMaxDepth = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Depth comes from the flag, not the file
	if cfg.Anim.MaxTreeDepth != 48 {
		t.Errorf("expected max depth 48 from flag, got %d", cfg.Anim.MaxTreeDepth)
	}
	// Heap capacity comes from the file since no flag overrides it
	if cfg.Anim.NodeHeapCapacity != 64 {
		t.Errorf("expected heap capacity 64 from file, got %d", cfg.Anim.NodeHeapCapacity)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "anim.yaml")

	cfg := Default()
	cfg.GestureCache.MaxEntries = 7
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if loaded.GestureCache.MaxEntries != 7 {
		t.Errorf("expected 7 cache entries after round trip, got %d", loaded.GestureCache.MaxEntries)
	}
}
