package validation

import (
	"fmt"

	"github.com/artpar/rollout/internal/core/domain"
)

// =============================================================================
// Target Validation Functions
// =============================================================================

// Target kinds accepted by the session API.
const (
	TargetDevices    = "devices"
	TargetAllDevices = "all_devices"
	TargetGroup      = "group"
	TargetFilter     = "filter"
	TargetNone       = "none"
)

// MaxDeviceIDs bounds an explicit device list.
const MaxDeviceIDs = 10000

// ValidateTargetFields validates a target selection request.
// Returns the field name and error message if validation fails.
// Returns empty strings if all fields are valid.
//
// An empty kind is treated as "none".
func ValidateTargetFields(kind string, deviceIDs []string, group, filterID string) (field, message string) {
	switch kind {
	case TargetDevices:
		if len(deviceIDs) > MaxDeviceIDs {
			return "device_ids", fmt.Sprintf("at most %d device ids are allowed", MaxDeviceIDs)
		}
	case TargetGroup:
		if group == "" {
			return "group", "group is required"
		}
	case TargetFilter:
		if filterID == "" {
			return "filter_id", "filter_id is required"
		}
	case TargetAllDevices, TargetNone, "":
	default:
		return "kind", fmt.Sprintf("unknown target kind %q", kind)
	}
	return "", ""
}

// =============================================================================
// Plan Validation Functions
// =============================================================================

// PhaseFields are the numeric inputs of one phase.
type PhaseFields struct {
	BatchSize *int
	Delay     *int
	DelayUnit string
}

// ValidatePlanFields validates the numeric fields of a plan request.
// Returns the field name and error message if validation fails.
//
// Example:
//
//	field, msg := ValidatePlanFields(3, []PhaseFields{{BatchSize: &ten}})
//	if field != "" {
//	    // Return 400 Bad Request with msg
//	}
func ValidatePlanFields(retries int, phases []PhaseFields) (field, message string) {
	if retries < 0 {
		return "retries", "retries must not be negative"
	}
	for i, p := range phases {
		if p.BatchSize != nil && (*p.BatchSize < 0 || *p.BatchSize > 100) {
			return fmt.Sprintf("phases[%d].batch_size", i), "batch_size must be between 0 and 100"
		}
		if p.Delay == nil {
			continue
		}
		if *p.Delay < 0 {
			return fmt.Sprintf("phases[%d].delay", i), "delay must not be negative"
		}
		unit, err := domain.ParseDelayUnit(p.DelayUnit)
		if err != nil {
			return fmt.Sprintf("phases[%d].delay_unit", i), err.Error()
		}
		if unit == domain.DelayUnitNone {
			unit = domain.DefaultDelayUnit
		}
		if limit := unit.MaxDelay(); *p.Delay > limit {
			return fmt.Sprintf("phases[%d].delay", i), fmt.Sprintf("delay must not exceed %d %s", limit, unit)
		}
	}
	return "", ""
}
