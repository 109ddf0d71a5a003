package phases

import (
	"slices"

	"github.com/artpar/rollout/internal/core/domain"
)

// Standardize reduces phases to the pattern used for equality and history.
//
// Start times are dropped, an omitted last batch becomes the remainder, an
// absent or zero delay becomes 0 with no unit, and a delay without a unit
// gets DefaultDelayUnit. Phase order is kept.
func Standardize(phases []domain.Phase) domain.Pattern {
	if len(phases) == 0 {
		return nil
	}
	out := make(domain.Pattern, len(phases))
	last := len(phases) - 1
	for i, phase := range phases {
		cp := domain.CanonicalPhase{}
		switch {
		case phase.BatchSize != nil:
			cp.BatchSize = *phase.BatchSize
		case i == last:
			cp.BatchSize = InferredLastBatch(phases)
		}
		if d := phase.DelayValue(); d > 0 {
			cp.Delay = d
			cp.DelayUnit = phase.DelayUnit
			if cp.DelayUnit == domain.DelayUnitNone {
				cp.DelayUnit = domain.DefaultDelayUnit
			}
		}
		out[i] = cp
	}
	return out
}

// SamePattern reports whether a and b are the same rollout pattern.
func SamePattern(a, b domain.Pattern) bool {
	return slices.Equal(a, b)
}
