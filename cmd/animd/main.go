// Package main is the headless animation runtime. It loads the gesture
// library, runs a crowd of characters through the frame scheduler at a fixed
// tick and serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/controller"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

const (
	tickRate   = 30
	characters = 32
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== Midgard Anim Runtime ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("runtime error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("runtime stopped normally")
}

func run(ctx context.Context, cfg *config.Config) error {
	lib := library.New(cfg.Library.Path, logger.Log)
	if cfg.Library.Path != "" {
		if err := lib.Reload(); err != nil {
			return fmt.Errorf("loading gesture library: %w", err)
		}
	}

	table, err := controller.LoadClips(cfg.Library.ClipDir, lib, logger.Named("clips"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := controller.NewService(cfg, controller.Deps{
		Table:      table,
		Library:    lib,
		Logger:     logger.Log,
		Registerer: reg,
	})
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close()

	if cfg.Debug.MetricsAddr != "" {
		srv := serveMetrics(cfg.Debug.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sched := controller.NewScheduler(svc, 0, reg)
	for i := 0; i < characters; i++ {
		sched.Add(svc.NewController(fmt.Sprintf("npc-%d", i), 0))
	}

	go drainLoud(ctx, svc)
	return loop(ctx, sched, lib)
}

// loop ticks the scheduler until ctx is cancelled. Each second every
// character whose gesture finished starts the next one in the library.
func loop(ctx context.Context, sched *controller.Scheduler, lib *library.Library) error {
	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	lastTime := time.Now()
	frame := 0
	logger.Info("starting frame loop", zap.Int("tick_rate", tickRate), zap.Int("characters", sched.Len()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := float32(now.Sub(lastTime).Seconds())
			lastTime = now

			if frame%tickRate == 0 {
				cycle(sched, lib, frame/tickRate)
			}
			if err := sched.RunFrame(ctx, dt); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("frame %d: %w", frame, err)
			}
			frame++
		}
	}
}

func cycle(sched *controller.Scheduler, lib *library.Library, second int) {
	names := lib.Names()
	if len(names) == 0 {
		return
	}
	for i := 0; i < sched.Len(); i++ {
		c := sched.Controller(fmt.Sprintf("npc-%d", i))
		if c == nil || c.Playing() > 0 && (second+i)%4 != 0 {
			continue
		}
		theta := float32((second*37+i*11)%180 - 90)
		_, _ = c.Play(controller.PlayRequest{
			Gesture:   names[(second+i)%len(names)],
			Target:    gesture.FromThetaPhi(theta, 0),
			BlendTime: 0.25,
		})
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// drainLoud surfaces high severity diagnostics on the console.
func drainLoud(ctx context.Context, svc *controller.Service) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-svc.Reporter().Loud():
			fmt.Fprintf(os.Stderr, "[frame %d] %v\n", r.Frame, r.Err)
		}
	}
}
