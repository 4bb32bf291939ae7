package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxstream/internal/meshing"
)

func TestFrustumIntersects(t *testing.T) {
	cam := NewCamera(800, 600)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	f := NewFrustum(cam.Projection().Mul4(view))

	tests := []struct {
		name     string
		min, max mgl32.Vec3
		want     bool
	}{
		{"ahead", mgl32.Vec3{-1, -1, -20}, mgl32.Vec3{1, 1, -18}, true},
		{"behind", mgl32.Vec3{-1, -1, 5}, mgl32.Vec3{1, 1, 7}, false},
		{"far left", mgl32.Vec3{-500, -1, -20}, mgl32.Vec3{-400, 1, -18}, false},
		{"beyond far plane", mgl32.Vec3{-1, -1, -5000}, mgl32.Vec3{1, 1, -4000}, false},
		{"straddles near plane", mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}, true},
	}
	for _, tt := range tests {
		if got := f.Intersects(tt.min, tt.max); got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOrbitLooksAtTarget(t *testing.T) {
	cam := NewCamera(1, 1)
	target := mgl32.Vec3{10, 5, 10}
	view := cam.Orbit(target, 30, 0.5, 0.4)
	p := view.Mul4x1(target.Vec4(1))
	// In view space the target sits straight ahead on -Z.
	if abs(p.X()) > 1e-3 || abs(p.Y()) > 1e-3 || abs(p.Z()+30) > 1e-3 {
		t.Fatalf("target in view space: got %v", p)
	}
}

func TestBounds(t *testing.T) {
	m := meshing.BuildBox(1, 2, mgl32.Vec3{4, 0, -2})
	min, max := bounds(m.Vertices)
	if min != (mgl32.Vec3{4, 0, -2}) || max != (mgl32.Vec3{6, 2, 0}) {
		t.Fatalf("bounds: got %v..%v", min, max)
	}
	if min, max := bounds(nil); min != (mgl32.Vec3{}) || max != (mgl32.Vec3{}) {
		t.Fatal("empty bounds not zero")
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
