package meshing

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Volume is a cubic occupancy grid of Dim()^3 voxels.
type Volume interface {
	Dim() int
	Solid(x, y, z int) bool
}

// BuildGreedy builds a greedy-merged quad mesh for v. Voxels outside the grid count
// as empty, so faces on the cell boundary are always emitted. voxel is the edge
// length of one voxel and origin the world position of voxel (0,0,0)'s minimum corner.
func BuildGreedy(v Volume, voxel float32, origin mgl32.Vec3) Mesh {
	n := v.Dim()
	if n <= 0 {
		return Mesh{}
	}
	b := meshBuilder{
		voxel:    voxel,
		origin:   origin,
		vertices: make([]float32, 0, 1024),
		indices:  make([]uint32, 0, 512),
	}
	mask := make([]bool, n*n)
	for axis := range 3 {
		for _, sign := range [2]int{+1, -1} {
			buildGreedyForDirection(v, n, axis, sign, mask, &b)
		}
	}
	return Mesh{Vertices: b.vertices, Indices: b.indices}
}

// BuildBox returns the hull of a fully solid n^3 volume: six quads.
func BuildBox(n int, voxel float32, origin mgl32.Vec3) Mesh {
	return BuildGreedy(solidVolume(n), voxel, origin)
}

type solidVolume int

func (s solidVolume) Dim() int               { return int(s) }
func (s solidVolume) Solid(x, y, z int) bool { return true }

// buildGreedyForDirection performs 2D greedy meshing for the faces whose normal is
// sign along axis. u and v are the in-plane axes with u x v pointing along +axis.
func buildGreedyForDirection(vol Volume, n, axis, sign int, mask []bool, b *meshBuilder) {
	u := (axis + 1) % 3
	v := (axis + 2) % 3
	solid := func(p [3]int) bool {
		if p[0] < 0 || p[0] >= n || p[1] < 0 || p[1] >= n || p[2] < 0 || p[2] >= n {
			return false
		}
		return vol.Solid(p[0], p[1], p[2])
	}

	for layer := range n {
		// mask[i*n+j] is set where the voxel at (u=i, v=j) has a visible face
		for i := range n {
			for j := range n {
				var p [3]int
				p[axis], p[u], p[v] = layer, i, j
				visible := solid(p)
				if visible {
					p[axis] += sign
					visible = !solid(p)
				}
				mask[i*n+j] = visible
			}
		}

		for i := range n {
			for j := 0; j < n; {
				if !mask[i*n+j] {
					j++
					continue
				}
				width := 1
				for j+width < n && mask[i*n+j+width] {
					width++
				}
				height := 1
			grow:
				for i+height < n {
					for k := j; k < j+width; k++ {
						if !mask[(i+height)*n+k] {
							break grow
						}
					}
					height++
				}

				plane := layer
				if sign > 0 {
					plane++
				}
				var p0, du, dv [3]float32
				p0[axis], p0[u], p0[v] = float32(plane), float32(i), float32(j)
				du[u] = float32(height)
				dv[v] = float32(width)
				var normal [3]float32
				normal[axis] = float32(sign)
				b.quad(p0, du, dv, normal, sign > 0)

				for ii := i; ii < i+height; ii++ {
					for jj := j; jj < j+width; jj++ {
						mask[ii*n+jj] = false
					}
				}
				j += width
			}
		}
	}
}

type meshBuilder struct {
	voxel    float32
	origin   mgl32.Vec3
	vertices []float32
	indices  []uint32
}

// quad emits four corners and two triangles. Front faces wind counter-clockwise
// seen from the side the normal points to.
func (b *meshBuilder) quad(p0, du, dv, normal [3]float32, positive bool) {
	corners := [4][3]float32{
		p0,
		add3(p0, du),
		add3(add3(p0, du), dv),
		add3(p0, dv),
	}
	base := uint32(len(b.vertices) / VertexStride)
	for _, c := range corners {
		b.vertices = append(b.vertices,
			b.origin[0]+c[0]*b.voxel,
			b.origin[1]+c[1]*b.voxel,
			b.origin[2]+c[2]*b.voxel,
			normal[0], normal[1], normal[2],
		)
	}
	if positive {
		b.indices = append(b.indices, base, base+1, base+2, base+2, base+3, base)
	} else {
		b.indices = append(b.indices, base, base+3, base+2, base+2, base+1, base)
	}
}

func add3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}
