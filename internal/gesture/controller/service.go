// Package controller drives gesture playback for characters.
//
// A Service owns everything shared across characters: the clip table, the
// gesture library, the gesture cache and the diagnostics reporter. Each
// character gets a Controller holding its layer stack. A Scheduler runs every
// controller's frame on a bounded worker pool.
package controller

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/diag"
	"github.com/Faultbox/midgard-anim/internal/gesture/cache"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/gesture/node"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

// ErrNoTable is returned when a service is created without a clip table.
var ErrNoTable = errors.New("controller: no clip table")

// Deps are the collaborators injected into a Service.
type Deps struct {
	Table   clip.Table
	Library *library.Library
	// Oracle picks gesture alternatives. Defaults to library.CriteriaOracle.
	Oracle     library.FactOracle
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// Service is the gesture runtime shared by all characters.
type Service struct {
	cfg      *config.Config
	log      *zap.Logger
	table    clip.Table
	lib      *library.Library
	oracle   library.FactOracle
	cache    *cache.Cache
	reporter *diag.Reporter
	nodeOpts node.Options
	watcher  *library.Watcher

	frame atomic.Uint64
}

// NewService wires a service from configuration. A nil cfg uses defaults and
// a nil library starts empty.
func NewService(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Table == nil {
		return nil, ErrNoTable
	}
	if deps.Library == nil {
		deps.Library = library.New(cfg.Library.Path, deps.Logger)
	}
	if deps.Oracle == nil {
		deps.Oracle = library.CriteriaOracle{}
	}

	log := logger.OrNop(deps.Logger).Named("gesture")
	copts := cache.OptionsFromConfig(cfg)
	copts.Registerer = deps.Registerer
	copts.Logger = log

	s := &Service{
		cfg:    cfg,
		log:    log,
		table:  deps.Table,
		lib:    deps.Library,
		oracle: deps.Oracle,
		cache:  cache.New(deps.Table, deps.Library, copts),
		reporter: diag.NewReporter(log, diag.ReporterOptions{
			RingSize:      cfg.Debug.RingBufferSize,
			LoudPerSecond: cfg.Debug.LoudReportsPerSecond,
			FinalBuild:    cfg.Debug.FinalBuild,
		}),
		nodeOpts: node.OptionsFromConfig(cfg),
	}

	s.lib.OnChange(func(changed []string) {
		s.log.Info("gesture definitions changed", zap.Strings("gestures", changed))
		s.cache.RequestRebuild()
	})
	return s, nil
}

// Start begins watching the library file when configured to.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Library.Watch || s.cfg.Library.Path == "" {
		return nil
	}
	w, err := library.NewWatcher(s.lib, library.DefaultDebounce)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	s.log.Info("watching gesture library", zap.String("path", s.cfg.Library.Path))
	return nil
}

// Close stops the library watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}

// BeginFrame runs the once-per-frame shared maintenance. It must not overlap
// with controller updates.
func (s *Service) BeginFrame() {
	f := s.frame.Add(1)
	s.reporter.SetFrame(f)
	s.cache.Update()
}

// Frame returns the number of frames begun.
func (s *Service) Frame() uint64 { return s.frame.Load() }

// Cache returns the gesture cache.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Library returns the gesture library.
func (s *Service) Library() *library.Library { return s.lib }

// Reporter returns the diagnostics reporter.
func (s *Service) Reporter() *diag.Reporter { return s.reporter }

// NewController creates the gesture controller of one character.
func (s *Service) NewController(character string, skeleton uint32) *Controller {
	return newController(s, character, skeleton)
}
