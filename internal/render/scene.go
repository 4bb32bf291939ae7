// Package render uploads finished cell meshes to OpenGL and draws them. All
// methods must run on the goroutine that owns the GL context.
package render

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"voxstream/internal/meshing"
	"voxstream/internal/scene"
	"voxstream/internal/world"
)

var materialColors = map[string][3]float32{
	meshing.MaterialTerrain: {0.45, 0.62, 0.32},
	meshing.MaterialFluid:   {0.20, 0.40, 0.85},
	meshing.MaterialBlock:   {0.60, 0.55, 0.50},
}

type glMesh struct {
	vao, vbo, ebo uint32
	indexCount    int32
	min, max      mgl32.Vec3
	fluid         bool
}

// GLScene implements scene.Scene on top of VAO/VBO/EBO triples.
type GLScene struct {
	shader *shader
	next   scene.EntityID
	meshes map[scene.EntityID]*glMesh
	colors map[scene.EntityID][3]float32
}

// NewGLScene compiles the scene shader. A GL context must be current.
func NewGLScene() (*GLScene, error) {
	sh, err := newShader(vertexSource, fragmentSource)
	if err != nil {
		return nil, err
	}
	return &GLScene{
		shader: sh,
		meshes: make(map[scene.EntityID]*glMesh),
		colors: make(map[scene.EntityID][3]float32),
	}, nil
}

func (s *GLScene) Attach(kind world.Kind, key world.CellKey, tier world.Tier, m meshing.Mesh) scene.EntityID {
	s.next++
	id := s.next

	gm := &glMesh{indexCount: int32(len(m.Indices)), fluid: kind == world.KindFluid}
	gm.min, gm.max = bounds(m.Vertices)

	gl.GenVertexArrays(1, &gm.vao)
	gl.GenBuffers(1, &gm.vbo)
	gl.GenBuffers(1, &gm.ebo)
	gl.BindVertexArray(gm.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, gm.vbo)
	if len(m.Vertices) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, len(m.Vertices)*4, gl.Ptr(m.Vertices), gl.STATIC_DRAW)
	}
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gm.ebo)
	if len(m.Indices) > 0 {
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(m.Indices)*4, gl.Ptr(m.Indices), gl.STATIC_DRAW)
	}
	// pos.xyz, normal.xyz
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, meshing.VertexStride*4, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, meshing.VertexStride*4, gl.PtrOffset(3*4))
	gl.BindVertexArray(0)

	s.meshes[id] = gm
	s.colors[id] = materialColors[m.Material]
	return id
}

func (s *GLScene) Destroy(id scene.EntityID) {
	gm, ok := s.meshes[id]
	if !ok {
		return
	}
	gl.DeleteBuffers(1, &gm.vbo)
	gl.DeleteBuffers(1, &gm.ebo)
	gl.DeleteVertexArrays(1, &gm.vao)
	delete(s.meshes, id)
	delete(s.colors, id)
}

// Len returns the number of live entities.
func (s *GLScene) Len() int { return len(s.meshes) }

// Draw renders every entity inside the view frustum, opaque first, and returns
// how many were drawn.
func (s *GLScene) Draw(view, proj mgl32.Mat4) int {
	frustum := NewFrustum(proj.Mul4(view))

	s.shader.use()
	s.shader.setMat4("proj", &proj[0])
	s.shader.setMat4("view", &view[0])
	s.shader.setVec3("lightDir", mgl32.Vec3{-0.4, -1, -0.3}.Normalize())

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	drawn := 0
	for _, fluidPass := range []bool{false, true} {
		if fluidPass {
			gl.Enable(gl.BLEND)
			gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
			gl.DepthMask(false)
			s.shader.setFloat("alpha", 0.6)
		} else {
			s.shader.setFloat("alpha", 1)
		}
		for id, gm := range s.meshes {
			if gm.fluid != fluidPass || gm.indexCount == 0 || !frustum.Intersects(gm.min, gm.max) {
				continue
			}
			s.shader.setVec3("color", s.colors[id])
			gl.BindVertexArray(gm.vao)
			gl.DrawElements(gl.TRIANGLES, gm.indexCount, gl.UNSIGNED_INT, nil)
			drawn++
		}
	}
	gl.DepthMask(true)
	gl.Disable(gl.BLEND)
	gl.BindVertexArray(0)
	return drawn
}

// Close releases every entity and the shader.
func (s *GLScene) Close() {
	for id := range s.meshes {
		s.Destroy(id)
	}
	s.shader.delete()
}

// bounds returns the axis-aligned box around interleaved vertices.
func bounds(verts []float32) (min, max mgl32.Vec3) {
	if len(verts) < meshing.VertexStride {
		return
	}
	min = mgl32.Vec3{verts[0], verts[1], verts[2]}
	max = min
	for i := 0; i+2 < len(verts); i += meshing.VertexStride {
		for a := range 3 {
			v := verts[i+a]
			if v < min[a] {
				min[a] = v
			}
			if v > max[a] {
				max[a] = v
			}
		}
	}
	return min, max
}
