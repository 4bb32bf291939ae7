package meshing

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxstream/internal/world"
)

// gridVolume is a test volume backed by a set of solid voxels.
type gridVolume struct {
	n     int
	solid map[[3]int]bool
}

func newGrid(n int, voxels ...[3]int) gridVolume {
	g := gridVolume{n: n, solid: make(map[[3]int]bool)}
	for _, v := range voxels {
		g.solid[v] = true
	}
	return g
}

func (g gridVolume) Dim() int               { return g.n }
func (g gridVolume) Solid(x, y, z int) bool { return g.solid[[3]int{x, y, z}] }

func TestSingleVoxelMesh(t *testing.T) {
	m := BuildGreedy(newGrid(4, [3]int{1, 1, 1}), 1, mgl32.Vec3{})
	if got := m.TriangleCount(); got != 12 {
		t.Fatalf("single voxel: got %d triangles, want 12", got)
	}
	if got := m.VertexCount(); got != 24 {
		t.Fatalf("single voxel: got %d vertices, want 24", got)
	}
}

func TestTwoVoxelsSeparated(t *testing.T) {
	m := BuildGreedy(newGrid(4, [3]int{0, 0, 0}, [3]int{2, 0, 0}), 1, mgl32.Vec3{})
	if got := m.TriangleCount(); got != 24 {
		t.Fatalf("two separated voxels: got %d triangles, want 24", got)
	}
}

func TestTwoVoxelsTouchingGreedy(t *testing.T) {
	m := BuildGreedy(newGrid(4, [3]int{0, 0, 0}, [3]int{1, 0, 0}), 1, mgl32.Vec3{})
	// Union is a 2x1x1 cuboid => 12 triangles
	if got := m.TriangleCount(); got != 12 {
		t.Fatalf("two touching voxels (greedy merge): got %d triangles, want 12", got)
	}
}

func TestBoxIsSixQuads(t *testing.T) {
	m := BuildBox(16, 1, mgl32.Vec3{})
	if got := m.TriangleCount(); got != 12 {
		t.Fatalf("solid box: got %d triangles, want 12", got)
	}
}

func TestScaleAndOrigin(t *testing.T) {
	origin := mgl32.Vec3{32, 0, -16}
	m := BuildGreedy(newGrid(2, [3]int{1, 1, 1}), 8, origin)
	lo := mgl32.Vec3{1e9, 1e9, 1e9}
	hi := mgl32.Vec3{-1e9, -1e9, -1e9}
	for i := 0; i < len(m.Vertices); i += VertexStride {
		for a := range 3 {
			lo[a] = min(lo[a], m.Vertices[i+a])
			hi[a] = max(hi[a], m.Vertices[i+a])
		}
	}
	if lo != (mgl32.Vec3{40, 8, -8}) || hi != (mgl32.Vec3{48, 16, 0}) {
		t.Fatalf("bounds: got %v..%v", lo, hi)
	}
}

func TestWindingFacesOutward(t *testing.T) {
	m := BuildGreedy(newGrid(1, [3]int{0, 0, 0}), 1, mgl32.Vec3{})
	pos := func(i uint32) mgl32.Vec3 {
		o := int(i) * VertexStride
		return mgl32.Vec3{m.Vertices[o], m.Vertices[o+1], m.Vertices[o+2]}
	}
	for t0 := 0; t0 < len(m.Indices); t0 += 3 {
		a, b, c := pos(m.Indices[t0]), pos(m.Indices[t0+1]), pos(m.Indices[t0+2])
		o := int(m.Indices[t0]) * VertexStride
		n := mgl32.Vec3{m.Vertices[o+3], m.Vertices[o+4], m.Vertices[o+5]}
		if b.Sub(a).Cross(c.Sub(a)).Dot(n) <= 0 {
			t.Fatalf("triangle %d winds against its normal %v", t0/3, n)
		}
	}
}

func TestHomogeneousFastPaths(t *testing.T) {
	if m := TerrainMesh(world.NewHomogeneousTerrain(world.TierFull, 0), 16, mgl32.Vec3{}); !m.Empty() {
		t.Fatalf("air terrain produced geometry")
	}
	m := TerrainMesh(world.NewHomogeneousTerrain(world.TierFull, 2), 16, mgl32.Vec3{})
	if m.TriangleCount() != 12 || m.Material != MaterialTerrain {
		t.Fatalf("solid terrain: got %d triangles material %q", m.TriangleCount(), m.Material)
	}
	if m := FluidMesh(world.NewHomogeneousFluid(world.TierFull, -1), 16, mgl32.Vec3{}); !m.Empty() {
		t.Fatalf("empty fluid produced geometry")
	}
	if m := BlockMesh(world.NewHomogeneousBlocks(world.TierHalf, 0), 16, mgl32.Vec3{}); !m.Empty() {
		t.Fatalf("empty blocks produced geometry")
	}
}

func TestTerrainEditMeshesOneVoxel(t *testing.T) {
	c := world.NewHomogeneousTerrain(world.TierFull, 0)
	if err := c.SetVoxel(3, 3, 3, 1, 1); err != nil {
		t.Fatal(err)
	}
	m := TerrainMesh(c, 16, mgl32.Vec3{})
	if got := m.TriangleCount(); got != 12 {
		t.Fatalf("one solid voxel: got %d triangles, want 12", got)
	}
}

func BenchmarkBuildGreedy_FullSurface(b *testing.B) {
	c := world.NewHomogeneousTerrain(world.TierFull, 0)
	for x := range 16 {
		for z := range 16 {
			for y := range (x + z) % 8 {
				_ = c.SetVoxel(x, y, z, 1, 1)
			}
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = TerrainMesh(c, 16, mgl32.Vec3{})
	}
}
