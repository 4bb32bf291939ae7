package world

import "fmt"

const (
	// keyBits is the width of one packed axis. Three axes fit in a uint64 with one bit spare.
	keyBits = 21
	keyMask = 1<<keyBits - 1

	// MinCoord and MaxCoord bound the cell coordinates that hash without collision.
	MinCoord = -(1 << (keyBits - 1))
	MaxCoord = 1<<(keyBits-1) - 1
)

// CellKey addresses one cell of world data by its integer world (cell-space) coordinates.
type CellKey struct {
	X, Y, Z int32
}

// Key builds a CellKey from int coordinates.
func Key(x, y, z int) CellKey {
	return CellKey{X: int32(x), Y: int32(y), Z: int32(z)}
}

// InHashRange reports whether every axis lies in [MinCoord, MaxCoord].
func (k CellKey) InHashRange() bool {
	return inRange(k.X) && inRange(k.Y) && inRange(k.Z)
}

func inRange(v int32) bool {
	return v >= MinCoord && v <= MaxCoord
}

// Hash packs the key into a single 64-bit value. Each axis is stored as a 21-bit
// two's complement field (x in the high bits), so Hash is injective for keys that
// satisfy InHashRange.
func (k CellKey) Hash() uint64 {
	return uint64(uint32(k.X)&keyMask)<<(2*keyBits) |
		uint64(uint32(k.Y)&keyMask)<<keyBits |
		uint64(uint32(k.Z)&keyMask)
}

// Unhash is the inverse of CellKey.Hash.
func Unhash(h uint64) CellKey {
	return CellKey{
		X: signExtend(uint32(h >> (2 * keyBits) & keyMask)),
		Y: signExtend(uint32(h >> keyBits & keyMask)),
		Z: signExtend(uint32(h & keyMask)),
	}
}

func signExtend(v uint32) int32 {
	return int32(v<<(32-keyBits)) >> (32 - keyBits)
}

// Add offsets the key by the given deltas.
func (k CellKey) Add(dx, dy, dz int) CellKey {
	return CellKey{X: k.X + int32(dx), Y: k.Y + int32(dy), Z: k.Z + int32(dz)}
}

func (k CellKey) String() string {
	return fmt.Sprintf("(%d,%d,%d)", k.X, k.Y, k.Z)
}

// Bounds is the discrete extent of the world in cells: every axis spans [0, DiscreteSize).
type Bounds struct {
	DiscreteSize int
}

// Contains reports whether k lies inside the world extent. A zero-size bound contains nothing.
func (b Bounds) Contains(k CellKey) bool {
	n := int32(b.DiscreteSize)
	return k.X >= 0 && k.X < n &&
		k.Y >= 0 && k.Y < n &&
		k.Z >= 0 && k.Z < n
}

// Fits reports whether every in-bounds key can be hashed without collision.
func (b Bounds) Fits() bool {
	return b.DiscreteSize >= 0 && b.DiscreteSize-1 <= MaxCoord
}
