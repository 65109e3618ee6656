// gesturetool is a CLI utility for inspecting gesture blend spaces.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/cache"
	"github.com/Faultbox/midgard-anim/internal/gesture/controller"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

func main() {
	config.ParseFlags()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	args = args[1:]

	switch command {
	case "list", "ls":
		cmdList(args)
	case "triangulate", "tri":
		cmdTriangulate(args)
	case "sample":
		cmdSample(args)
	case "simulate", "sim":
		cmdSimulate(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gesturetool - gesture blend space utility

Usage:
  gesturetool [global flags] <command> [options]

Global flags:
  -config <file>     Runtime config file
  -library <file>    Gesture library file
  -debug             Debug logging

Commands:
  list                               List gesture definitions
  triangulate <gesture> [-flip]      Print the blend mesh of a gesture
  sample <gesture> <theta> <phi>     Resolve a direction into weighted samples
  simulate [-n 64] [-frames 300]     Run characters through the scheduler
  config [-o <file>] [-save]         Print or save the effective config

Examples:
  gesturetool -library gestures.yaml list
  gesturetool -library gestures.yaml triangulate point
  gesturetool -library gestures.yaml sample point 30 10
  gesturetool -library gestures.yaml -workers 8 simulate -n 256
  gesturetool -debug config -save`)
}

type env struct {
	cfg   *config.Config
	lib   *library.Library
	table *clip.MemTable
}

// setup loads config, the library and its clips.
func setup() *env {
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fatal(err)
	}
	if cfg.Library.Path == "" {
		fatal(fmt.Errorf("no gesture library, pass -library"))
	}

	lib, err := library.Load(cfg.Library.Path, logger.Named("library"))
	if err != nil {
		fatal(err)
	}

	table, err := controller.LoadClips(cfg.Library.ClipDir, lib, logger.Named("clips"))
	if err != nil {
		fatal(err)
	}
	return &env{cfg: cfg, lib: lib, table: table}
}

func (e *env) service() *controller.Service {
	svc, err := controller.NewService(e.cfg, controller.Deps{
		Table:   e.table,
		Library: e.lib,
		Logger:  logger.Log,
	})
	if err != nil {
		fatal(err)
	}
	return svc
}

func (e *env) acquire(svc *controller.Service, name string, flipped bool) *cache.Data {
	def := e.lib.Lookup(name)
	if def == nil {
		fatal(fmt.Errorf("unknown gesture %q", name))
	}
	d, err := svc.Cache().TryCacheData(cache.NewKey(def, 0, flipped, library.AltNone), def)
	if err != nil {
		fatal(err)
	}
	return d
}

func cmdList(args []string) {
	e := setup()
	defer logger.Sync()

	names := e.lib.Names()
	sort.Strings(names)
	fmt.Printf("%-24s %-10s %6s %5s\n", "NAME", "TYPE", "PAIRS", "ALTS")
	for _, name := range names {
		def := e.lib.Lookup(name)
		fmt.Printf("%-24s %-10s %6d %5d\n", name, def.AnimType, len(def.Anims.Pairs), len(def.Alternatives))
	}
	fmt.Printf("\n%d gestures\n", len(names))
}

func cmdTriangulate(args []string) {
	fs := flag.NewFlagSet("triangulate", flag.ExitOnError)
	flip := fs.Bool("flip", false, "Mirror the blend space")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gesturetool triangulate <gesture> [-flip]")
		os.Exit(1)
	}

	e := setup()
	defer logger.Sync()
	svc := e.service()
	d := e.acquire(svc, fs.Arg(0), *flip)
	defer svc.Cache().ReleaseData(d)

	d.View(func(v *cache.View) {
		fmt.Printf("Gesture: %s (%s)\n", d.Name(), d.Key())
		if v.Bad() {
			fmt.Println("Status:  bad (missing clips or invalid mesh)")
			return
		}
		m := v.Mesh()
		fmt.Printf("Mesh:    %d points, %d triangles, %d islands, linear=%t manual=%t hyper=%t\n",
			len(m.Points), len(m.Triangles), m.NumIslands, m.Linear, m.Manual, v.HyperRange())

		fmt.Println("\nSamples:")
		for i := 0; i < v.NumAnims(); i++ {
			a := v.Anim(i)
			name := a.Partial.Name
			if name == "" {
				name = a.Additive.Name
			}
			tag := ""
			if a.Extra {
				tag = " (pole)"
			} else if a.WrapAround {
				tag = " (wrap)"
			}
			fmt.Printf("  %2d  %-24s theta=%8.2f phi=%7.2f phase=%.3f island=%d%s\n",
				i, name, a.Dir.Theta, a.Dir.Phi, a.Phase, m.Islands[i], tag)
		}

		if len(m.Triangles) > 0 {
			fmt.Println("\nTriangles:")
			for i, t := range m.Triangles {
				fmt.Printf("  %2d  [%2d %2d %2d] island=%d\n", i, t.V[0], t.V[1], t.V[2], t.Island)
			}
		}
	})
}

func cmdSample(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: gesturetool sample <gesture> <theta> <phi>")
		os.Exit(1)
	}
	theta, err := strconv.ParseFloat(args[1], 32)
	if err != nil {
		fatal(fmt.Errorf("theta: %w", err))
	}
	phi, err := strconv.ParseFloat(args[2], 32)
	if err != nil {
		fatal(fmt.Errorf("phi: %w", err))
	}

	e := setup()
	defer logger.Sync()
	svc := e.service()
	d := e.acquire(svc, args[0], false)
	defer svc.Cache().ReleaseData(d)

	target := gesture.FromThetaPhi(float32(theta), float32(phi))
	sel := d.Select(target.AsVec2(), -1)
	fmt.Printf("Target:  theta=%.2f phi=%.2f\n", target.Theta, target.Phi)
	fmt.Printf("Closest: theta=%.2f phi=%.2f inside=%t triangle=%d\n",
		sel.Closest.X, sel.Closest.Y, sel.Inside, sel.Triangle)
	d.View(func(v *cache.View) {
		for i := 0; i < sel.Count; i++ {
			a := v.Anim(sel.Anims[i])
			fmt.Printf("  %-24s weight=%.4f\n", a.Partial.Name, sel.Weights[i])
		}
	})
	if sel.Count == 3 {
		a, b := gesture.NestedBlend(sel.Weights)
		fmt.Printf("Nested:  a=%.4f b=%.4f\n", a, b)
	}
}

func cmdSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	n := fs.Int("n", 64, "Number of characters")
	frames := fs.Int("frames", 300, "Frames to run")
	seed := fs.Int64("seed", 1, "Random seed")
	fs.Parse(args)

	e := setup()
	defer logger.Sync()
	svc := e.service()
	names := e.lib.Names()
	if len(names) == 0 {
		fatal(fmt.Errorf("library is empty"))
	}

	rng := rand.New(rand.NewSource(*seed))
	sched := controller.NewScheduler(svc, 0, nil)
	for i := 0; i < *n; i++ {
		c := svc.NewController(fmt.Sprintf("npc-%d", i), uint32(i%4))
		sched.Add(c)
	}

	const dt = float32(1.0 / 30)
	ctx := context.Background()
	start := time.Now()
	for f := 0; f < *frames; f++ {
		// Every second, a quarter of the crowd switches gesture.
		if f%30 == 0 {
			for i := 0; i < *n/4; i++ {
				retarget(sched, rng, names, *n)
			}
		}
		if err := sched.RunFrame(ctx, dt); err != nil {
			fatal(err)
		}
	}
	elapsed := time.Since(start)

	st := svc.Cache().Stats()
	fmt.Printf("Frames:        %d (%s, %s/frame)\n", *frames, elapsed.Round(time.Millisecond), (elapsed / time.Duration(max(*frames, 1))).Round(time.Microsecond))
	fmt.Printf("Characters:    %d\n", sched.Len())
	fmt.Printf("Cache entries: %d/%d (evicting=%t)\n", st.Entries, st.Capacity, st.Evicting)
	fmt.Printf("Constructions: %d\n", st.Constructions)
	fmt.Printf("Diagnostics:   %d recent\n", len(svc.Reporter().Recent()))
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("o", "", "Write the config to a file")
	save := fs.Bool("save", false, "Write the config to the user config directory")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	if err := writeConfig(os.Stdout, cfg, *out, *save); err != nil {
		fatal(err)
	}
}

// writeConfig prints cfg as YAML to w, or saves it to path or the user
// config directory.
func writeConfig(w io.Writer, cfg *config.Config, path string, save bool) error {
	switch {
	case save:
		path = config.UserConfigPath()
		if err := cfg.Save(); err != nil {
			return err
		}
	case path != "":
		if err := cfg.SaveTo(path); err != nil {
			return err
		}
	default:
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	fmt.Fprintf(w, "Saved config to %s\n", path)
	return nil
}

func retarget(s *controller.Scheduler, rng *rand.Rand, names []string, n int) {
	c := s.Controller(fmt.Sprintf("npc-%d", rng.Intn(n)))
	if c == nil {
		return
	}
	_, _ = c.Play(controller.PlayRequest{
		Gesture:   names[rng.Intn(len(names))],
		Target:    gesture.FromThetaPhi(rng.Float32()*180-90, rng.Float32()*60-30),
		BlendTime: 0.25,
		Flipped:   rng.Intn(2) == 0,
	})
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
