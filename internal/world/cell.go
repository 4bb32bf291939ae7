package world

import (
	"fmt"
	"slices"
)

// Kind identifies which stream a record belongs to.
type Kind uint8

const (
	KindTerrain Kind = iota
	KindFluid
	KindBlock
)

// Kinds lists every data kind in stream order.
var Kinds = [...]Kind{KindTerrain, KindFluid, KindBlock}

func (k Kind) String() string {
	switch k {
	case KindTerrain:
		return "terrain"
	case KindFluid:
		return "fluid"
	case KindBlock:
		return "block"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// Cell is the constraint satisfied by the record types held in a resolution cache.
// Records are pointers, so identity comparison is what the reverse position index uses.
type Cell[C any] interface {
	comparable
	Tier() Tier
	// Clone returns a deep copy used as an immutable snapshot for background work.
	Clone() C
	// Modified returns the voxel indices edited since the last ResetModified, ascending.
	Modified() []int
	ResetModified()
}

// ModifiedSet accumulates flat voxel indices touched by local edits.
type ModifiedSet struct {
	idx map[int]struct{}
}

// Mark records index i as modified.
func (m *ModifiedSet) Mark(i int) {
	if m.idx == nil {
		m.idx = make(map[int]struct{})
	}
	m.idx[i] = struct{}{}
}

// Indices returns the marked indices in ascending order.
func (m *ModifiedSet) Indices() []int {
	out := make([]int, 0, len(m.idx))
	for i := range m.idx {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of marked indices.
func (m *ModifiedSet) Len() int { return len(m.idx) }

// Reset forgets every marked index.
func (m *ModifiedSet) Reset() { m.idx = nil }

func (m *ModifiedSet) clone() ModifiedSet {
	if len(m.idx) == 0 {
		return ModifiedSet{}
	}
	c := make(map[int]struct{}, len(m.idx))
	for i := range m.idx {
		c[i] = struct{}{}
	}
	return ModifiedSet{idx: c}
}

// GridIndex flattens (x, y, z) for a cubic grid of edge dim, x varying fastest.
func GridIndex(dim, x, y, z int) int {
	return (z*dim+y)*dim + x
}

func InGrid(dim, x, y, z int) bool {
	return x >= 0 && x < dim && y >= 0 && y < dim && z >= 0 && z < dim
}

// GridDims returns the per-axis sample count of a kind's payload at tier t.
func GridDims(kind Kind, t Tier) int {
	switch kind {
	case KindTerrain:
		return TerrainDim(t)
	case KindFluid:
		return FluidDim(t)
	default:
		return BlockDim(t)
	}
}
