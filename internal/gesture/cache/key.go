// Package cache shares built gesture blend spaces between characters.
//
// An entry is built once per Key and then read concurrently by every
// character playing that gesture. The table lock guards the key map and
// each entry has its own lock, so readers of different gestures never wait
// on each other and a rebuild only blocks readers of the entry it touches.
package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/Faultbox/midgard-anim/internal/gesture/library"
)

// Key identifies one built blend space. It is 16 bytes and compared by
// value.
type Key struct {
	GestureID  uint64
	SkeletonID uint32
	Flipped    bool
	AnimType   library.AnimType
	AltIndex   uint8
	_          uint8
}

// GestureID hashes a gesture name into a Key id.
func GestureID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// NewKey builds the key for a gesture as played by one skeleton.
func NewKey(def *library.Def, skeleton uint32, flipped bool, alt uint8) Key {
	return Key{
		GestureID:  GestureID(def.Name),
		SkeletonID: skeleton,
		Flipped:    flipped,
		AnimType:   def.AnimType,
		AltIndex:   alt,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%016x/%d/%s/alt%d/flip=%t", k.GestureID, k.SkeletonID, k.AnimType, k.AltIndex, k.Flipped)
}
