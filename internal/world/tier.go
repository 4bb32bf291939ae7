package world

import "fmt"

// Tier is a resolution tier. A cell's data at a coarser tier is fetched and cached
// independently of its full-resolution data.
type Tier uint8

const (
	TierFull Tier = iota
	TierHalf
	TierQuarter
	TierEighth
	TierSixteenth

	// NumTiers is the number of resolution tiers.
	NumTiers = 5
)

// TierFromStride converts a wire stride (0 = full .. 4 = sixteenth) into a Tier.
func TierFromStride(stride int) (Tier, error) {
	if stride < 0 || stride >= NumTiers {
		return 0, fmt.Errorf("invalid stride %d", stride)
	}
	return Tier(stride), nil
}

// Stride is the wire value of the tier.
func (t Tier) Stride() int { return int(t) }

// Factor is the per-axis downsampling factor, 2^stride.
func (t Tier) Factor() int { return 1 << t }

// Valid reports whether t names one of the five tiers.
func (t Tier) Valid() bool { return t < NumTiers }

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierHalf:
		return "half"
	case TierQuarter:
		return "quarter"
	case TierEighth:
		return "eighth"
	case TierSixteenth:
		return "sixteenth"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}
