package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type plane struct {
	a, b, c, d float32
}

func normalizePlane(p plane) plane {
	l := float32(math.Sqrt(float64(p.a*p.a + p.b*p.b + p.c*p.c)))
	if l == 0 {
		return p
	}
	return plane{p.a / l, p.b / l, p.c / l, p.d / l}
}

// Frustum holds the six clip planes of a projection*view matrix in the order
// left, right, bottom, top, near, far.
type Frustum [6]plane

func NewFrustum(clip mgl32.Mat4) Frustum {
	// mgl32 is column-major
	m00, m01, m02, m03 := clip[0], clip[4], clip[8], clip[12]
	m10, m11, m12, m13 := clip[1], clip[5], clip[9], clip[13]
	m20, m21, m22, m23 := clip[2], clip[6], clip[10], clip[14]
	m30, m31, m32, m33 := clip[3], clip[7], clip[11], clip[15]

	return Frustum{
		normalizePlane(plane{m30 + m00, m31 + m01, m32 + m02, m33 + m03}),
		normalizePlane(plane{m30 - m00, m31 - m01, m32 - m02, m33 - m03}),
		normalizePlane(plane{m30 + m10, m31 + m11, m32 + m12, m33 + m13}),
		normalizePlane(plane{m30 - m10, m31 - m11, m32 - m12, m33 - m13}),
		normalizePlane(plane{m30 + m20, m31 + m21, m32 + m22, m33 + m23}),
		normalizePlane(plane{m30 - m20, m31 - m21, m32 - m22, m33 - m23}),
	}
}

// Intersects reports whether the box [min, max] is at least partly inside.
func (f Frustum) Intersects(min, max mgl32.Vec3) bool {
	for _, p := range f {
		// positive vertex for this normal
		px := max.X()
		if p.a < 0 {
			px = min.X()
		}
		py := max.Y()
		if p.b < 0 {
			py = min.Y()
		}
		pz := max.Z()
		if p.c < 0 {
			pz = min.Z()
		}
		if p.a*px+p.b*py+p.c*pz+p.d < 0 {
			return false
		}
	}
	return true
}

// Camera builds the projection and view for the viewer.
type Camera struct {
	AspectRatio float32
	FOV         float32
	NearPlane   float32
	FarPlane    float32
}

func NewCamera(width, height int) *Camera {
	return &Camera{
		AspectRatio: float32(width) / float32(height),
		FOV:         60.0,
		NearPlane:   0.1,
		FarPlane:    2000.0,
	}
}

func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), c.AspectRatio, c.NearPlane, c.FarPlane)
}

// Orbit looks at target from distance away, rotated yaw radians around Y and
// pitched up by pitch radians.
func (c *Camera) Orbit(target mgl32.Vec3, distance, yaw, pitch float32) mgl32.Mat4 {
	cp := float32(math.Cos(float64(pitch)))
	eye := target.Add(mgl32.Vec3{
		distance * cp * float32(math.Cos(float64(yaw))),
		distance * float32(math.Sin(float64(pitch))),
		distance * cp * float32(math.Sin(float64(yaw))),
	})
	return mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0})
}
