package phases

import (
	"fmt"

	"github.com/artpar/rollout/internal/core/domain"
)

// SmallPopulationThreshold is the device count below which a percentage can
// round down to zero devices. At or above it every 1% is at least one device.
const SmallPopulationThreshold = 100

// =============================================================================
// Phase Validation
// =============================================================================

// ValidatePhases reports whether phases is an acceptable rollout pattern for a
// target of targetCount devices. A targetCount <= 0 means the count is not
// known yet. hasFilter marks saved-filter targets, whose population is only
// resolved by the server.
func ValidatePhases(phases []domain.Phase, targetCount int, hasFilter bool) bool {
	ok, _ := CheckPhases(phases, targetCount, hasFilter)
	return ok
}

// CheckPhases is ValidatePhases with the reason for the first failed rule.
// Returns true and an empty reason when the phases are valid.
//
// Example:
//
//	ok, reason := CheckPhases(phases, 1, false)
//	if !ok {
//	    // disable submission and show reason
//	}
func CheckPhases(phases []domain.Phase, targetCount int, hasFilter bool) (bool, string) {
	switch len(phases) {
	case 0:
		return true, ""
	case 1:
		if b := phases[0].BatchSize; b != nil && *b != 100 {
			return false, fmt.Sprintf("a single phase must cover 100%% of devices, got %d%%", *b)
		}
		return checkDelays(phases)
	}

	last := len(phases) - 1
	sum := 0
	for i, phase := range phases[:last] {
		if phase.BatchSize == nil {
			return false, fmt.Sprintf("phase %d has no batch size", i+1)
		}
		b := *phase.BatchSize
		if b < 1 || b > 100 {
			return false, fmt.Sprintf("phase %d batch size %d%% is outside 1-100%%", i+1, b)
		}
		if perDeviceCheckApplies(targetCount, hasFilter) && wholeDevices(b, targetCount) < 1 {
			return false, fmt.Sprintf("phase %d batch size %d%% of %d devices contains no device", i+1, b, targetCount)
		}
		sum += b
	}

	remainder := 100 - sum
	if b := phases[last].BatchSize; b != nil {
		if *b < 0 || *b > 100 {
			return false, fmt.Sprintf("phase %d batch size %d%% is outside 0-100%%", last+1, *b)
		}
		if sum+*b != 100 {
			return false, fmt.Sprintf("batch sizes add up to %d%%, not 100%%", sum+*b)
		}
	} else if remainder < 0 {
		return false, fmt.Sprintf("batch sizes add up to %d%%, leaving nothing for the last phase", sum)
	}

	return checkDelays(phases)
}

// perDeviceCheckApplies reports whether each phase must contain a whole device.
// Filter targets are skipped since their size is unknown before creation.
func perDeviceCheckApplies(targetCount int, hasFilter bool) bool {
	return !hasFilter && targetCount > 0 && targetCount < SmallPopulationThreshold
}

// wholeDevices is the number of complete devices batchSize percent of count covers.
func wholeDevices(batchSize, count int) int {
	return batchSize * count / 100
}

func checkDelays(phases []domain.Phase) (bool, string) {
	for i, phase := range phases {
		if phase.Delay == nil {
			continue
		}
		d := *phase.Delay
		if d < 0 {
			return false, fmt.Sprintf("phase %d has a negative delay", i+1)
		}
		if d == 0 {
			continue
		}
		if phase.DelayUnit == domain.DelayUnitNone {
			return false, fmt.Sprintf("phase %d delay has no unit", i+1)
		}
		if !phase.DelayUnit.IsValid() {
			return false, fmt.Sprintf("phase %d delay unit %q is not supported", i+1, phase.DelayUnit)
		}
		if limit := phase.DelayUnit.MaxDelay(); d > limit {
			return false, fmt.Sprintf("phase %d delay exceeds %d %s", i+1, limit, phase.DelayUnit)
		}
	}
	return true, ""
}

// InferredLastBatch returns the batch size of the last phase, computing the
// remainder when it was omitted. Returns 100 for an empty list.
func InferredLastBatch(phases []domain.Phase) int {
	if len(phases) == 0 {
		return 100
	}
	last := len(phases) - 1
	if b := phases[last].BatchSize; b != nil {
		return *b
	}
	sum := 0
	for _, phase := range phases[:last] {
		if phase.BatchSize != nil {
			sum += *phase.BatchSize
		}
	}
	return 100 - sum
}
