package phases

import (
	"fmt"
	"strings"

	"github.com/artpar/rollout/internal/core/domain"
)

// smallGroupSize is the population below which the default first batch is
// raised so that it holds at least one device.
const smallGroupSize = 10

// DefaultCustomPattern is the two-phase pattern offered when a user switches
// from a single phase to a custom rollout: a first batch, a 2 hour pause, then
// the remainder.
func DefaultCustomPattern(targetCount int, hasFilter bool) []domain.Phase {
	minBatch := 10
	if !hasFilter && targetCount > 0 && targetCount < smallGroupSize {
		minBatch = (100 + targetCount - 1) / targetCount
	}
	return []domain.Phase{
		{BatchSize: domain.IntPtr(minBatch), Delay: domain.IntPtr(2), DelayUnit: domain.DelayUnitHours},
		{},
	}
}

// SinglePhasePattern is the default pattern: everything at once.
func SinglePhasePattern() []domain.Phase {
	return []domain.Phase{{BatchSize: domain.IntPtr(100)}}
}

// Describe renders a pattern the way the recent-pattern menu lists it,
// e.g. "2 phases: 10% > 2 hours > 90%".
func Describe(p domain.Pattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d phases:", len(p))
	for _, phase := range p {
		if phase.Delay > 0 {
			unit := phase.DelayUnit
			if unit == domain.DelayUnitNone {
				unit = domain.DefaultDelayUnit
			}
			fmt.Fprintf(&b, " %d%% > %d %s >", phase.BatchSize, phase.Delay, unit)
			continue
		}
		fmt.Fprintf(&b, " %d%%", phase.BatchSize)
	}
	return b.String()
}
