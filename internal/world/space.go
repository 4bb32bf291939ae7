package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultCellSize is the edge length of one cell in world units.
const DefaultCellSize = 16

// Space converts between real (world-unit) positions and cell keys.
type Space struct {
	CellSize int
}

// NewSpace returns a Space with the given cell size, falling back to DefaultCellSize.
func NewSpace(cellSize int) Space {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return Space{CellSize: cellSize}
}

// KeyAt returns the key of the cell containing position p.
func (s Space) KeyAt(p mgl32.Vec3) CellKey {
	size := float64(s.CellSize)
	return CellKey{
		X: int32(math.Floor(float64(p.X()) / size)),
		Y: int32(math.Floor(float64(p.Y()) / size)),
		Z: int32(math.Floor(float64(p.Z()) / size)),
	}
}

// Origin returns the real-space position of the cell's minimum corner.
func (s Space) Origin(k CellKey) mgl32.Vec3 {
	size := float32(s.CellSize)
	return mgl32.Vec3{float32(k.X) * size, float32(k.Y) * size, float32(k.Z) * size}
}

// Center returns the real-space centre of the cell.
func (s Space) Center(k CellKey) mgl32.Vec3 {
	half := float32(s.CellSize) / 2
	return s.Origin(k).Add(mgl32.Vec3{half, half, half})
}

// DistanceTo is the Euclidean distance from p to the cell's centre.
func (s Space) DistanceTo(p mgl32.Vec3, k CellKey) float32 {
	return s.Center(k).Sub(p).Len()
}

// KeysWithin returns every key whose centre lies within radius of p. Keys are
// visited in x, y, z order of the enclosing box.
func (s Space) KeysWithin(p mgl32.Vec3, radius float32) []CellKey {
	if radius < 0 {
		return nil
	}
	r := mgl32.Vec3{radius, radius, radius}
	lo := s.KeyAt(p.Sub(r))
	hi := s.KeyAt(p.Add(r))

	keys := make([]CellKey, 0, int(hi.X-lo.X+1)*int(hi.Y-lo.Y+1)*int(hi.Z-lo.Z+1))
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				k := CellKey{X: x, Y: y, Z: z}
				if s.DistanceTo(p, k) <= radius {
					keys = append(keys, k)
				}
			}
		}
	}
	return keys
}
