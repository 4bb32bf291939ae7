package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxstream/internal/world"
)

const raycastStep = float32(0.02)

// RaycastResult is the first solid block a ray met in cached block data.
type RaycastResult struct {
	Hit      bool
	Cell     world.CellKey
	Block    [3]int // inside Cell's full-resolution block grid
	Adjacent [3]int // last empty block before the hit, in world block units
	Distance float32
}

// Raycast marches from start along dir through cached full-resolution block
// records and reports the first solid block within maxDist. Cells that are not
// cached at full resolution count as empty. Runs on the frame goroutine.
func (e *Engine) Raycast(start, dir mgl32.Vec3, maxDist float32) RaycastResult {
	defer e.prof.Track("engine.Raycast")()
	if dir.Len() == 0 {
		return RaycastResult{}
	}
	dir = dir.Normalize()

	n := world.BlockDim(world.TierFull)
	size := float32(e.space.CellSize) / float32(n)

	var (
		lastKey  world.CellKey
		lastCell *world.BlockChunk
		looked   bool
		prev     [3]int
	)
	steps := int(maxDist / raycastStep)
	for i := 0; i <= steps; i++ {
		dist := float32(i) * raycastStep
		pos := start.Add(dir.Mul(dist))
		b := [3]int{
			int(math.Floor(float64(pos.X() / size))),
			int(math.Floor(float64(pos.Y() / size))),
			int(math.Floor(float64(pos.Z() / size))),
		}
		if i > 0 && b == prev {
			continue
		}

		key := world.Key(floorDiv(b[0], n), floorDiv(b[1], n), floorDiv(b[2], n))
		if !looked || key != lastKey {
			lastKey, looked = key, true
			lastCell, _ = e.block.mgr.Get(key, world.TierFull)
		}
		if lastCell != nil {
			local := [3]int{b[0] - int(key.X)*n, b[1] - int(key.Y)*n, b[2] - int(key.Z)*n}
			if lastCell.Solid(local[0], local[1], local[2]) {
				return RaycastResult{Hit: true, Cell: key, Block: local, Adjacent: prev, Distance: dist}
			}
		}
		prev = b
	}
	return RaycastResult{}
}

func floorDiv(a, n int) int {
	q := a / n
	if a%n != 0 && a < 0 {
		q--
	}
	return q
}
