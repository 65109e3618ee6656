package library

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-anim/internal/logger"
)

// ErrNoPath is returned by Reload on a library not backed by a file.
var ErrNoPath = errors.New("gesture library has no file")

// File is the on-disk layout of a gesture library.
type File struct {
	Gestures []Def `yaml:"gestures"`
}

// ChangeFunc receives the names of definitions added, removed or modified by
// a reload.
type ChangeFunc func(changed []string)

// Library holds the current gesture definitions. Lookups are safe for
// concurrent use with reloads; a returned *Def is never mutated.
type Library struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	defs    map[string]*Def
	version uint64

	flight singleflight.Group

	listenMu  sync.Mutex
	listeners []ChangeFunc
}

// New returns an empty library. path may be empty for in-memory use.
func New(path string, log *zap.Logger) *Library {
	return &Library{
		path: path,
		log:  logger.OrNop(log).Named("library"),
		defs: make(map[string]*Def),
	}
}

// Load reads and validates a library file.
func Load(path string, log *zap.Logger) (*Library, error) {
	l := New(path, log)
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Parse decodes and validates library YAML.
func Parse(data []byte) (map[string]*Def, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing gesture library: %w", err)
	}

	defs := make(map[string]*Def, len(f.Gestures))
	for i := range f.Gestures {
		d := &f.Gestures[i]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate gesture %q", ErrInvalidDef, d.Name)
		}
		defs[d.Name] = d
	}
	return defs, nil
}

// Lookup returns the named definition or nil.
func (l *Library) Lookup(name string) *Def {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.defs[name]
}

// Names returns the sorted definition names.
func (l *Library) Names() []string {
	l.mu.RLock()
	names := make([]string, 0, len(l.defs))
	for n := range l.defs {
		names = append(names, n)
	}
	l.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Version increases every time the definitions change.
func (l *Library) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// OnChange registers fn to run after definitions change.
func (l *Library) OnChange(fn ChangeFunc) {
	l.listenMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenMu.Unlock()
}

// Set validates and adds or replaces definitions.
func (l *Library) Set(defs ...*Def) error {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	l.mu.Lock()
	next := make(map[string]*Def, len(l.defs)+len(defs))
	for k, v := range l.defs {
		next[k] = v
	}
	for _, d := range defs {
		next[d.Name] = d
	}
	changed := l.swapLocked(next)
	l.mu.Unlock()

	l.notify(changed)
	return nil
}

// Reload rereads the backing file. Concurrent calls share one read.
func (l *Library) Reload() error {
	if l.path == "" {
		return ErrNoPath
	}
	_, err, shared := l.flight.Do("reload", func() (any, error) {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("reading gesture library: %w", err)
		}
		defs, err := Parse(data)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		changed := l.swapLocked(defs)
		l.mu.Unlock()

		l.log.Info("gesture library loaded",
			zap.String("path", l.path),
			zap.Int("gestures", len(defs)),
			zap.Int("changed", len(changed)))
		l.notify(changed)
		return nil, nil
	})
	if err != nil {
		l.log.Warn("gesture library reload failed", zap.Error(err), zap.Bool("shared", shared))
	}
	return err
}

func (l *Library) swapLocked(next map[string]*Def) []string {
	var changed []string
	for name, d := range next {
		if old, ok := l.defs[name]; !ok || !reflect.DeepEqual(old, d) {
			changed = append(changed, name)
		}
	}
	for name := range l.defs {
		if _, ok := next[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)

	l.defs = next
	if len(changed) > 0 {
		l.version++
	}
	return changed
}

func (l *Library) notify(changed []string) {
	if len(changed) == 0 {
		return
	}
	l.listenMu.Lock()
	fns := append([]ChangeFunc(nil), l.listeners...)
	l.listenMu.Unlock()
	for _, fn := range fns {
		fn(changed)
	}
}

// ClipNames returns every clip name the definitions reference, sorted.
func (l *Library) ClipNames() []string {
	l.mu.RLock()
	seen := make(map[string]struct{})
	for _, d := range l.defs {
		d.clipNames(seen)
	}
	l.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
