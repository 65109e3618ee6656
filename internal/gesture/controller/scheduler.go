package controller

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-anim/internal/diag"
)

// Scheduler runs the frame of every registered controller in parallel on a
// bounded pool of workers. The gesture cache is the only state the jobs
// share.
type Scheduler struct {
	svc     *Service
	workers int

	frameSeconds prometheus.Histogram
	jobSeconds   prometheus.Histogram

	mu          sync.Mutex
	controllers []*Controller
	// retired controllers are released when the next frame starts.
	retired []*Controller
}

// NewScheduler creates a scheduler. workers <= 0 uses the configured pool
// size; a nil reg registers nowhere.
func NewScheduler(svc *Service, workers int, reg prometheus.Registerer) *Scheduler {
	if workers <= 0 {
		workers = svc.cfg.Scheduler.Workers
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Scheduler{
		svc:     svc,
		workers: max(workers, 1),
		frameSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gesture_frame_seconds",
			Help:    "Wall time of one scheduled animation frame.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		jobSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gesture_character_job_seconds",
			Help:    "Wall time of one character's frame job.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12),
		}),
	}
}

// Add registers a controller.
func (s *Scheduler) Add(c *Controller) {
	s.mu.Lock()
	s.controllers = append(s.controllers, c)
	s.mu.Unlock()
}

// Remove unregisters the controller of character. A frame already running
// may still update it, so it is released at the start of the next RunFrame.
func (s *Scheduler) Remove(character string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.controllers {
		if c.character == character {
			s.retired = append(s.retired, c)
			s.controllers = append(s.controllers[:i], s.controllers[i+1:]...)
			return
		}
	}
}

// Controller returns the registered controller of character, or nil.
func (s *Scheduler) Controller(character string) *Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.controllers {
		if c.character == character {
			return c
		}
	}
	return nil
}

// Len returns the number of registered controllers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controllers)
}

// RunFrame releases removed controllers, runs shared maintenance and then
// every character job. Job failures are reported and never abort the frame;
// only ctx cancellation is returned. Frames must not overlap.
func (s *Scheduler) RunFrame(ctx context.Context, dt float32) error {
	start := time.Now()
	defer func() { s.frameSeconds.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	retired := s.retired
	s.retired = nil
	jobs := append([]*Controller(nil), s.controllers...)
	s.mu.Unlock()

	for _, c := range retired {
		c.Release()
	}
	s.svc.BeginFrame()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, c := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.runJob(c, dt)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) runJob(c *Controller, dt float32) {
	start := time.Now()
	defer func() { s.jobSeconds.Observe(time.Since(start).Seconds()) }()

	c.Update(dt)
	c.cmds.Reset()
	if err := c.GenerateCommands(c.cmds); err != nil {
		s.svc.reporter.Report(diag.New(diag.ReasonMalformedTree, diag.SeverityHigh, err).WithGesture(c.character, ""))
	}
}
