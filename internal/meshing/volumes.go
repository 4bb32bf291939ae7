package meshing

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxstream/internal/world"
)

const (
	MaterialTerrain = "terrain"
	MaterialFluid   = "fluid"
	MaterialBlock   = "block"
)

// terrainVolume treats each voxel as solid when its minimum-corner sample has positive weight.
type terrainVolume struct{ c *world.TerrainChunk }

func (v terrainVolume) Dim() int               { return v.c.Dim() - 1 }
func (v terrainVolume) Solid(x, y, z int) bool { return v.c.Solid(x, y, z) }

// fluidVolume skips the one-sample border around the cell.
type fluidVolume struct{ c *world.FluidChunk }

func (v fluidVolume) Dim() int               { return v.c.Dim() - 2 }
func (v fluidVolume) Solid(x, y, z int) bool { return v.c.Solid(x+1, y+1, z+1) }

// TerrainMesh meshes a terrain record whose cell has edge cellSize and minimum corner origin.
func TerrainMesh(c *world.TerrainChunk, cellSize float32, origin mgl32.Vec3) Mesh {
	vol := terrainVolume{c}
	n := vol.Dim()
	voxel := cellSize / float32(n)
	var m Mesh
	if typ, ok := c.Homogeneous(); ok {
		if typ == 0 {
			return Mesh{}
		}
		m = BuildBox(n, voxel, origin)
	} else {
		m = BuildGreedy(vol, voxel, origin)
	}
	m.Material = MaterialTerrain
	return m
}

// FluidMesh meshes a fluid record.
func FluidMesh(c *world.FluidChunk, cellSize float32, origin mgl32.Vec3) Mesh {
	vol := fluidVolume{c}
	n := vol.Dim()
	voxel := cellSize / float32(n)
	var m Mesh
	if w, ok := c.Homogeneous(); ok {
		if w <= 0 {
			return Mesh{}
		}
		m = BuildBox(n, voxel, origin)
	} else {
		m = BuildGreedy(vol, voxel, origin)
	}
	m.Material = MaterialFluid
	return m
}

// BlockMesh meshes a block record.
func BlockMesh(c *world.BlockChunk, cellSize float32, origin mgl32.Vec3) Mesh {
	n := c.Dim()
	voxel := cellSize / float32(n)
	var m Mesh
	if typ, ok := c.Homogeneous(); ok {
		if typ == 0 {
			return Mesh{}
		}
		m = BuildBox(n, voxel, origin)
	} else {
		m = BuildGreedy(c, voxel, origin)
	}
	m.Material = MaterialBlock
	return m
}
