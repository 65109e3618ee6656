package clip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ACT import errors.
var (
	ErrInvalidACTMagic       = errors.New("invalid ACT magic: expected 'AC'")
	ErrUnsupportedACTVersion = errors.New("unsupported ACT version")
	ErrTruncatedACTData      = errors.New("truncated ACT data")
)

const (
	actHeaderSize   = 16
	actRangesSize   = 32
	actEventNameLen = 40

	// defaultActInterval and minActInterval are frame durations in ms.
	defaultActInterval = 150
	minActInterval     = 50
)

var actDirections = []string{"s", "sw", "w", "nw", "n", "ne", "e", "se"}

var monsterActions = []string{"idle", "walk", "attack", "damage", "die", "attack-2", "attack-3", "special"}

var playerActions = []string{
	"idle", "walk", "sit", "pick-up", "standby", "attack-1", "damage", "die",
	"dead", "attack-2", "attack-3", "skill-cast", "skill-ready", "freeze",
}

// actAction is the timing of one sprite action.
type actAction struct {
	frames   int
	interval float32
}

// ImportACT reads the actions of a Ragnarok Online ACT sprite file as
// looping clips named "<prefix>/<action>-<direction>". Sprite layers are
// skipped; only frame counts and intervals are kept.
func ImportACT(prefix string, data []byte) ([]*Clip, error) {
	actions, err := parseACTTiming(data)
	if err != nil {
		return nil, err
	}

	clips := make([]*Clip, 0, len(actions))
	for i, a := range actions {
		interval := a.interval
		if interval <= 0 {
			interval = defaultActInterval
		}
		interval = max(interval, minActInterval)

		c := &Clip{
			Name:      prefix + "/" + ACTActionName(i, len(actions)),
			NumFrames: a.frames,
			FrameRate: 1000 / interval,
			Looping:   true,
		}
		// The wrap frame closes the loop so the last frame gets its full
		// interval.
		if a.frames > 1 {
			c.NumFrames = a.frames + 1
		}
		clips = append(clips, c)
	}
	return clips, nil
}

// ImportACTFile imports an ACT file, prefixing clips with its base name.
func ImportACTFile(path string) ([]*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ACT file: %w", err)
	}
	prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	clips, err := ImportACT(strings.ToLower(prefix), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clips, nil
}

// LoadACTDir imports every .act file in dir into t and returns the number of
// clips added.
func (t *MemTable) LoadACTDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".act") {
			continue
		}
		clips, err := ImportACTFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		for _, c := range clips {
			t.Add(c)
		}
		n += len(clips)
	}
	return n, nil
}

// ACTActionName names action index of an ACT with total actions. Sprites
// with a multiple of eight actions are named by type and direction; monster
// sprites carry at most eight types.
func ACTActionName(index, total int) string {
	if total < 8 || total%8 != 0 {
		return fmt.Sprintf("action-%d", index)
	}
	kind, dir := index/8, index%8
	names := playerActions
	if total/8 <= 8 {
		names = monsterActions
	}
	typeName := fmt.Sprintf("action%d", kind)
	if kind < len(names) {
		typeName = names[kind]
	}
	return typeName + "-" + actDirections[dir]
}

func parseACTTiming(data []byte) ([]actAction, error) {
	if len(data) < actHeaderSize {
		return nil, ErrTruncatedACTData
	}
	if data[0] != 'A' || data[1] != 'C' {
		return nil, ErrInvalidACTMagic
	}

	// Stored minor first.
	version := uint16(data[3])<<8 | uint16(data[2])
	if version < 0x200 || version > 0x205 {
		return nil, fmt.Errorf("%w: 0x%X", ErrUnsupportedACTVersion, version)
	}

	count := int(binary.LittleEndian.Uint16(data[4:6]))
	r := bytes.NewReader(data[actHeaderSize:])

	actions := make([]actAction, count)
	for i := range actions {
		frames, err := skipActFrames(r, version)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions[i].frames = frames
	}

	if version >= 0x201 {
		var events int32
		if err := binary.Read(r, binary.LittleEndian, &events); err == nil && events > 0 {
			skip := int64(events) * actEventNameLen
			if skip > int64(r.Len()) {
				return nil, fmt.Errorf("%w: events", ErrTruncatedACTData)
			}
			r.Seek(skip, io.SeekCurrent)
		}
	}

	// Intervals may be cut short at EOF; missing ones keep the default.
	if version >= 0x202 {
		for i := range actions {
			if err := binary.Read(r, binary.LittleEndian, &actions[i].interval); err != nil {
				break
			}
		}
	}
	return actions, nil
}

// actLayerSize is the encoded size of one sprite layer.
func actLayerSize(version uint16) int64 {
	// x, y, sprite, flags, color, scale x, rotation, sprite type
	size := int64(32)
	if version >= 0x204 {
		size += 4
	}
	if version >= 0x205 {
		size += 8
	}
	return size
}

func skipActFrames(r *bytes.Reader, version uint16) (int, error) {
	var frames uint32
	if err := binary.Read(r, binary.LittleEndian, &frames); err != nil {
		return 0, fmt.Errorf("%w: frame count", ErrTruncatedACTData)
	}
	if int64(frames) > int64(r.Len()) {
		return 0, fmt.Errorf("%w: %d frames", ErrTruncatedACTData, frames)
	}

	layer := actLayerSize(version)
	for i := uint32(0); i < frames; i++ {
		if _, err := r.Seek(actRangesSize, io.SeekCurrent); err != nil {
			return 0, fmt.Errorf("%w: frame %d ranges", ErrTruncatedACTData, i)
		}
		var layers uint32
		if err := binary.Read(r, binary.LittleEndian, &layers); err != nil {
			return 0, fmt.Errorf("%w: frame %d layer count", ErrTruncatedACTData, i)
		}
		// Layers plus the event id.
		skip := int64(layers)*layer + 4
		if skip > int64(r.Len()) {
			return 0, fmt.Errorf("%w: frame %d layers", ErrTruncatedACTData, i)
		}
		r.Seek(skip, io.SeekCurrent)

		if version >= 0x203 {
			var anchors uint32
			if err := binary.Read(r, binary.LittleEndian, &anchors); err != nil {
				return 0, fmt.Errorf("%w: frame %d anchor count", ErrTruncatedACTData, i)
			}
			// Padding, x, y, attribute.
			skip := int64(anchors) * 16
			if skip > int64(r.Len()) {
				return 0, fmt.Errorf("%w: frame %d anchors", ErrTruncatedACTData, i)
			}
			r.Seek(skip, io.SeekCurrent)
		}
	}
	return int(frames), nil
}
