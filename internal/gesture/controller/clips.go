package controller

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

// PlaceholderClip is the clip standing in for a name no asset provides: a
// one second loop at 30 fps.
func PlaceholderClip(name string) *clip.Clip {
	return &clip.Clip{Name: name, NumFrames: 31, FrameRate: 30, Looping: true}
}

// LoadClips builds the clip table of a library. ACT files in dir are
// imported first; every referenced clip still missing gets a placeholder.
// An empty dir only produces placeholders.
func LoadClips(dir string, lib *library.Library, log *zap.Logger) (*clip.MemTable, error) {
	log = logger.OrNop(log)
	t := clip.NewMemTable()
	if dir != "" {
		n, err := t.LoadACTDir(dir)
		if err != nil {
			return nil, err
		}
		log.Info("imported clips", zap.String("dir", dir), zap.Int("clips", n))
	}

	var missing []string
	for _, name := range lib.ClipNames() {
		if t.LookupAnim(name) == nil {
			t.Add(PlaceholderClip(name))
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 && dir != "" {
		log.Warn("clips missing from assets, using placeholders", zap.Strings("clips", missing))
	}
	return t, nil
}
