package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestHashRoundTrip(t *testing.T) {
	keys := []CellKey{
		{0, 0, 0},
		{1, 2, 3},
		{-1, -1, -1},
		{MinCoord, MaxCoord, 0},
		{MaxCoord, MinCoord, -7},
		{123456, -654321, 999999},
	}
	for _, k := range keys {
		if got := Unhash(k.Hash()); got != k {
			t.Fatalf("Unhash(Hash(%v)): got %v", k, got)
		}
	}
}

func TestHashDistinctNeighbours(t *testing.T) {
	seen := make(map[uint64]CellKey)
	for x := -4; x <= 4; x++ {
		for y := -4; y <= 4; y++ {
			for z := -4; z <= 4; z++ {
				k := Key(x, y, z)
				h := k.Hash()
				if prev, ok := seen[h]; ok {
					t.Fatalf("hash collision between %v and %v", prev, k)
				}
				seen[h] = k
			}
		}
	}
}

func TestHashAxesDoNotAlias(t *testing.T) {
	a := CellKey{X: 1}
	b := CellKey{Y: 1}
	c := CellKey{Z: 1}
	if a.Hash() == b.Hash() || b.Hash() == c.Hash() || a.Hash() == c.Hash() {
		t.Fatalf("unit keys share a hash: %x %x %x", a.Hash(), b.Hash(), c.Hash())
	}
}

func TestInHashRange(t *testing.T) {
	if !(CellKey{MinCoord, MaxCoord, 0}).InHashRange() {
		t.Fatalf("extremes should be in range")
	}
	if (CellKey{MaxCoord + 1, 0, 0}).InHashRange() {
		t.Fatalf("MaxCoord+1 should be out of range")
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{DiscreteSize: 4}
	tests := []struct {
		k    CellKey
		want bool
	}{
		{Key(0, 0, 0), true},
		{Key(3, 3, 3), true},
		{Key(4, 0, 0), false},
		{Key(0, -1, 0), false},
	}
	for _, tt := range tests {
		if got := b.Contains(tt.k); got != tt.want {
			t.Fatalf("Contains(%v): got %v, want %v", tt.k, got, tt.want)
		}
	}
	if (Bounds{}).Contains(Key(0, 0, 0)) {
		t.Fatalf("zero bounds should contain nothing")
	}
}

func TestSpaceCentreAndKeyAt(t *testing.T) {
	s := NewSpace(16)
	if got := s.Center(Key(0, 0, 0)); got != (mgl32.Vec3{8, 8, 8}) {
		t.Fatalf("centre of origin cell: got %v", got)
	}
	if got := s.KeyAt(mgl32.Vec3{-0.5, 15.9, 16}); got != Key(-1, 0, 1) {
		t.Fatalf("KeyAt: got %v, want (-1,0,1)", got)
	}
}

func TestKeysWithinRespectsRadius(t *testing.T) {
	s := NewSpace(16)
	origin := mgl32.Vec3{}
	const radius = 100
	for _, k := range s.KeysWithin(origin, radius) {
		if d := s.DistanceTo(origin, k); d > radius {
			t.Fatalf("key %v at distance %f returned for radius %d", k, d, radius)
		}
	}
}

func BenchmarkHash(b *testing.B) {
	k := Key(1234, -56, 789)
	var sink uint64
	for i := 0; i < b.N; i++ {
		sink ^= k.Add(i&15, 0, 0).Hash()
	}
	_ = sink
}
