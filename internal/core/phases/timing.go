package phases

import (
	"time"

	"github.com/artpar/rollout/internal/core/domain"
)

// =============================================================================
// Phase Start Times
// =============================================================================

// ResolveStartTime returns the start of phases[index] for a rollout starting
// at root. A nil root is the "start immediately" sentinel and resolves to nil
// for every index; the caller stamps real times once the submission instant
// is known.
//
// Later phases are chained from the root through every earlier phase's delay.
// The result depends only on the phase values passed in, so recomputing it
// any number of times gives the same answer.
func ResolveStartTime(phases []domain.Phase, index int, root *time.Time) *time.Time {
	if root == nil {
		return nil
	}
	start := *root
	if index < 1 {
		return &start
	}
	if index > len(phases) {
		index = len(phases)
	}
	for _, phase := range phases[:index] {
		start = advance(start, phase)
	}
	return &start
}

// StampStartTimes returns a copy of phases with every StartTS chained from root.
// An empty list yields a single 100% phase starting at root.
func StampStartTimes(phases []domain.Phase, root time.Time) []domain.Phase {
	if len(phases) == 0 {
		start := root
		return []domain.Phase{{BatchSize: domain.IntPtr(100), StartTS: &start}}
	}
	out := domain.ClonePhases(phases)
	start := root
	for i := range out {
		ts := start
		out[i].StartTS = &ts
		start = advance(start, out[i])
	}
	return out
}

func advance(t time.Time, phase domain.Phase) time.Time {
	d := phase.DelayValue()
	if d <= 0 {
		return t
	}
	unit := phase.DelayUnit
	if unit == domain.DelayUnitNone {
		unit = domain.DefaultDelayUnit
	}
	return unit.Advance(t, d)
}
