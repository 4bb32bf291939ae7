package lifecycle

import "voxstream/internal/world"

// TierPolicy picks a resolution tier from distance. Thresholds[i] is the largest
// distance, in world units, still drawn at tier i; beyond the last threshold the
// last tier is used. An empty policy always picks full resolution.
type TierPolicy struct {
	Thresholds []float32
}

// CellThresholds builds a policy from distances expressed in cells.
func CellThresholds(cellSize int, cells ...float32) TierPolicy {
	p := TierPolicy{Thresholds: make([]float32, 0, len(cells))}
	for _, c := range cells {
		p.Thresholds = append(p.Thresholds, c*float32(cellSize))
	}
	return p
}

func (p TierPolicy) TierFor(distance float32) world.Tier {
	if len(p.Thresholds) == 0 {
		return world.TierFull
	}
	for i, limit := range p.Thresholds {
		if i >= world.NumTiers {
			break
		}
		if distance <= limit {
			return world.Tier(i)
		}
	}
	return world.Tier(min(len(p.Thresholds), world.NumTiers) - 1)
}
