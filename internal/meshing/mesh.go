package meshing

// VertexStride is number of float32 per vertex (pos.xyz + normal.xyz)
const VertexStride = 6

// Mesh is renderable geometry for one cell: interleaved vertices, triangle
// indices and the material the renderer binds for it.
type Mesh struct {
	Vertices []float32
	Indices  []uint32
	Material string
}

// Empty reports whether the mesh has no visible geometry.
func (m Mesh) Empty() bool {
	return len(m.Indices) == 0
}

// VertexCount returns the number of vertices in the mesh.
func (m Mesh) VertexCount() int {
	return len(m.Vertices) / VertexStride
}

// TriangleCount returns the number of triangles in the mesh.
func (m Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}
