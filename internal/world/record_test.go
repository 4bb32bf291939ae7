package world

import (
	"slices"
	"testing"
)

func TestTerrainDims(t *testing.T) {
	want := []int{17, 9, 5, 3, 2}
	for tier := TierFull; tier <= TierSixteenth; tier++ {
		if got := TerrainDim(tier); got != want[tier] {
			t.Fatalf("TerrainDim(%s): got %d, want %d", tier, got, want[tier])
		}
	}
	if FluidDim(TierFull) != 18 || BlockDim(TierFull) != 64 {
		t.Fatalf("full dims: fluid %d block %d", FluidDim(TierFull), BlockDim(TierFull))
	}
}

func TestTerrainSetVoxelExpandsHomogeneous(t *testing.T) {
	c := NewHomogeneousTerrain(TierFull, 3)
	if v, ok := c.Homogeneous(); !ok || v != 3 {
		t.Fatalf("Homogeneous: got %d,%v", v, ok)
	}
	if err := c.SetVoxel(1, 2, 3, -0.5, 0); err != nil {
		t.Fatalf("SetVoxel: %v", err)
	}
	if _, ok := c.Homogeneous(); ok {
		t.Fatalf("chunk still homogeneous after a differing edit")
	}
	if got := c.Type(1, 2, 3); got != 0 {
		t.Fatalf("edited type: got %d, want 0", got)
	}
	if got := c.Type(0, 0, 0); got != 3 {
		t.Fatalf("untouched type: got %d, want 3", got)
	}
	if got := c.Modified(); !slices.Equal(got, []int{GridIndex(17, 1, 2, 3)}) {
		t.Fatalf("Modified: got %v", got)
	}
	c.ResetModified()
	if len(c.Modified()) != 0 {
		t.Fatalf("Modified after reset: got %v", c.Modified())
	}
}

func TestTerrainSetVoxelOutOfRange(t *testing.T) {
	c := NewHomogeneousTerrain(TierHalf, 1)
	if err := c.SetVoxel(9, 0, 0, 1, 1); err == nil {
		t.Fatalf("expected error writing outside a 9^3 grid")
	}
}

func TestNewTerrainRejectsShortGrid(t *testing.T) {
	if _, err := NewTerrain(TierFull, make([]int32, 10), make([]float32, 10)); err == nil {
		t.Fatalf("expected size error")
	}
}

func TestTerrainCloneIsDeep(t *testing.T) {
	n := cube(TerrainDim(TierQuarter))
	c, err := NewTerrain(TierQuarter, make([]int32, n), make([]float32, n))
	if err != nil {
		t.Fatal(err)
	}
	snap := c.Clone()
	if err := c.SetVoxel(0, 0, 0, 1, 7); err != nil {
		t.Fatal(err)
	}
	if snap.Type(0, 0, 0) != 0 {
		t.Fatalf("snapshot observed a later edit")
	}
	if snap.Equal(c) {
		t.Fatalf("snapshot should differ after edit")
	}
}

func TestFluidNormalizesEmptyWeights(t *testing.T) {
	n := cube(FluidDim(TierFull))
	w := make([]float32, n)
	w[5] = 0.75
	c, err := NewFluid(TierFull, w)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Weights()[0]; got != FluidEmpty {
		t.Fatalf("zero weight: got %f, want %f", got, FluidEmpty)
	}
	if got := c.Weights()[5]; got != 0.75 {
		t.Fatalf("positive weight: got %f", got)
	}
	h := NewHomogeneousFluid(TierFull, -3)
	if v, ok := h.Homogeneous(); !ok || v != FluidEmpty {
		t.Fatalf("homogeneous empty fluid: got %f,%v", v, ok)
	}
}

func TestBlockSetSameTypeStaysHomogeneous(t *testing.T) {
	c := NewHomogeneousBlocks(TierFull, 2)
	if err := c.SetBlock(4, 4, 4, 2, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Homogeneous(); !ok {
		t.Fatalf("same-type write should keep the chunk homogeneous")
	}
	if err := c.SetBlock(4, 4, 4, 5, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Homogeneous(); ok {
		t.Fatalf("differing write should materialize the grid")
	}
	if c.Type(4, 4, 4) != 5 || c.Meta(4, 4, 4) != 1 || c.Type(0, 0, 0) != 2 {
		t.Fatalf("grid contents wrong after materialize")
	}
	if len(c.Modified()) != 1 {
		t.Fatalf("Modified: got %v, want one index", c.Modified())
	}
}

func TestNegativeHomogeneousTerrainPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("negative homogeneous type accepted")
		}
	}()
	NewHomogeneousTerrain(TierFull, NotHomogeneous)
}
