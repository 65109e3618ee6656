package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagFinal     = flag.Bool("final", false, "Final build mode (silence diagnostics)")
	flagWorkers   = flag.Int("workers", 0, "Animation job workers per frame")
	flagCacheSize = flag.Int("cache-entries", 0, "Gesture cache capacity")
	flagLibrary   = flag.String("library", "", "Gesture library file")
	flagWatchLib  = flag.Bool("watch", false, "Reload the gesture library on change")
	flagMaxDepth  = flag.Int("max-tree-depth", 0, "Blend tree recursion limit")
	flagLogFile   = flag.String("log-file", "", "Log file path")
	flagClipDir   = flag.String("clips", "", "Directory of ACT files to import as clips")
	flagMetrics   = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagFinal {
		cfg.Debug.FinalBuild = true
	}
	if *flagWorkers > 0 {
		cfg.Scheduler.Workers = *flagWorkers
	}
	if *flagCacheSize > 0 {
		cfg.GestureCache.MaxEntries = *flagCacheSize
	}
	if *flagLibrary != "" {
		cfg.Library.Path = *flagLibrary
	}
	if *flagWatchLib {
		cfg.Library.Watch = true
	}
	if *flagMaxDepth > 0 {
		cfg.Anim.MaxTreeDepth = *flagMaxDepth
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagClipDir != "" {
		cfg.Library.ClipDir = *flagClipDir
	}
	if *flagMetrics != "" {
		cfg.Debug.MetricsAddr = *flagMetrics
	}
}
