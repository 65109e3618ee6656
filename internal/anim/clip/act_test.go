package clip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildACT encodes an ACT with one action per entry of frames, each frame
// holding one layer.
func buildACT(version uint16, intervals []float32, frames ...int) []byte {
	var buf bytes.Buffer
	buf.WriteString("AC")
	buf.WriteByte(byte(version & 0xFF))
	buf.WriteByte(byte(version >> 8))
	binary.Write(&buf, binary.LittleEndian, uint16(len(frames)))
	buf.Write(make([]byte, 10))

	for _, n := range frames {
		binary.Write(&buf, binary.LittleEndian, uint32(n))
		for f := 0; f < n; f++ {
			buf.Write(make([]byte, actRangesSize))
			binary.Write(&buf, binary.LittleEndian, uint32(1))
			buf.Write(make([]byte, actLayerSize(version)))
			binary.Write(&buf, binary.LittleEndian, int32(-1))
			if version >= 0x203 {
				binary.Write(&buf, binary.LittleEndian, uint32(1))
				buf.Write(make([]byte, 16))
			}
		}
	}

	if version >= 0x201 {
		binary.Write(&buf, binary.LittleEndian, int32(1))
		name := make([]byte, actEventNameLen)
		copy(name, "atk")
		buf.Write(name)
	}
	if version >= 0x202 {
		for _, iv := range intervals {
			binary.Write(&buf, binary.LittleEndian, iv)
		}
	}
	return buf.Bytes()
}

func TestImportACTVersions(t *testing.T) {
	for _, v := range []uint16{0x200, 0x201, 0x202, 0x203, 0x204, 0x205} {
		t.Run(fmt.Sprintf("0x%X", v), func(t *testing.T) {
			clips, err := ImportACT("poring", buildACT(v, []float32{100, 200}, 4, 1))
			require.NoError(t, err)
			require.Len(t, clips, 2)

			assert.Equal(t, "poring/action-0", clips[0].Name)
			assert.Equal(t, 5, clips[0].NumFrames)
			assert.True(t, clips[0].Looping)
			assert.Equal(t, 1, clips[1].NumFrames)
			assert.Zero(t, clips[1].Duration())

			if v >= 0x202 {
				assert.InDelta(t, 10, clips[0].FrameRate, 1e-4)
				assert.InDelta(t, 0.4, clips[0].Duration(), 1e-5)
			} else {
				assert.InDelta(t, 1000.0/defaultActInterval, clips[0].FrameRate, 1e-4)
			}
		})
	}
}

func TestImportACTIntervalClamp(t *testing.T) {
	clips, err := ImportACT("fx", buildACT(0x205, []float32{10}, 3))
	require.NoError(t, err)
	assert.InDelta(t, 1000.0/minActInterval, clips[0].FrameRate, 1e-4)
}

func TestImportACTErrors(t *testing.T) {
	good := buildACT(0x205, []float32{100}, 2)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte("AC"), ErrTruncatedACTData},
		{"magic", append([]byte("XX"), good[2:]...), ErrInvalidACTMagic},
		{"version", append([]byte{'A', 'C', 0x99, 0x01}, good[4:]...), ErrUnsupportedACTVersion},
		{"cut frames", good[:60], ErrTruncatedACTData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportACT("x", tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestACTActionName(t *testing.T) {
	tests := []struct {
		index, total int
		want         string
	}{
		{0, 3, "action-0"},
		{0, 40, "idle-s"},
		{17, 40, "attack-sw"},
		{39, 40, "die-se"},
		{60, 64, "special-n"},
		{42, 104, "attack-1-w"},
		{90, 104, "skill-cast-w"},
		{108, 112, "freeze-n"},
		{120, 128, "action15-s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ACTActionName(tt.index, tt.total), "%d/%d", tt.index, tt.total)
	}
}

func TestLoadACTDir(t *testing.T) {
	dir := t.TempDir()
	frames := make([]int, 40)
	for i := range frames {
		frames[i] = 3
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Poring.act"), buildACT(0x205, nil, frames...), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("skip"), 0o644))

	tbl := NewMemTable()
	n, err := tbl.LoadACTDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 40, n)

	c := tbl.LookupAnim("poring/walk-n")
	require.NotNil(t, c)
	assert.Equal(t, 4, c.NumFrames)

	_, err = tbl.LoadACTDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
