package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// =============================================================================
// Rollout Errors
// =============================================================================

var (
	ErrInvalidDelayUnit = errors.New("invalid delay unit")
)

// =============================================================================
// Delay Units
// =============================================================================

// DelayUnit is the unit a phase delay is expressed in.
type DelayUnit string

const (
	DelayUnitNone    DelayUnit = ""
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// DefaultDelayUnit is assumed for a delay that was entered without a unit.
const DefaultDelayUnit = DelayUnitHours

// IsValid reports whether u is one of the known units. The empty unit is not valid.
func (u DelayUnit) IsValid() bool {
	switch u {
	case DelayUnitMinutes, DelayUnitHours, DelayUnitDays:
		return true
	}
	return false
}

// ParseDelayUnit accepts the unit names in any case, plus their singular forms.
func ParseDelayUnit(s string) (DelayUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DelayUnitNone, nil
	case "minute", "minutes":
		return DelayUnitMinutes, nil
	case "hour", "hours":
		return DelayUnitHours, nil
	case "day", "days":
		return DelayUnitDays, nil
	}
	return DelayUnitNone, fmt.Errorf("%w: %q", ErrInvalidDelayUnit, s)
}

// MaxDelay is the largest delay accepted in unit u: one year.
// The empty unit is counted in DefaultDelayUnit.
func (u DelayUnit) MaxDelay() int {
	switch u {
	case DelayUnitMinutes:
		return 365 * 24 * 60
	case DelayUnitDays:
		return 365
	default:
		return 365 * 24
	}
}

// Advance returns t moved forward by amount units. Days are calendar days.
// Amounts beyond what time.Duration can hold saturate instead of wrapping,
// and a non-positive amount leaves t unchanged.
func (u DelayUnit) Advance(t time.Time, amount int) time.Time {
	if amount <= 0 {
		return t
	}
	switch u {
	case DelayUnitMinutes:
		return t.Add(saturatingDuration(amount, time.Minute))
	case DelayUnitDays:
		return t.AddDate(0, 0, int(min(int64(amount), maxDays)))
	default:
		return t.Add(saturatingDuration(amount, time.Hour))
	}
}

// maxDays is the number of whole days in the largest time.Duration.
const maxDays = int64(math.MaxInt64 / int64(24*time.Hour))

func saturatingDuration(amount int, unit time.Duration) time.Duration {
	if int64(amount) > int64(math.MaxInt64/unit) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(amount) * unit
}

// =============================================================================
// Phase
// =============================================================================

// Phase is one step of a multi-step rollout.
//
// Delay is the wait between the start of this phase and the start of the next
// one, so the delay of the last phase never affects the schedule.
type Phase struct {
	// BatchSize is the percentage of the target population updated in this
	// phase. Nil on the last phase means "the remainder".
	BatchSize *int `json:"batch_size,omitempty"`

	// Delay is nil when unset, which is treated as 0.
	Delay *int `json:"delay,omitempty"`

	DelayUnit DelayUnit `json:"delay_unit,omitempty"`

	// StartTS is derived at submission; user input only ever sets it on the
	// first phase, through RolloutPlan.StartTime.
	StartTS *time.Time `json:"start_ts,omitempty"`
}

// DelayValue returns the delay, treating an absent delay as 0.
func (p Phase) DelayValue() int {
	if p.Delay == nil {
		return 0
	}
	return *p.Delay
}

// Clone returns a deep copy of p.
func (p Phase) Clone() Phase {
	c := Phase{DelayUnit: p.DelayUnit}
	if p.BatchSize != nil {
		c.BatchSize = IntPtr(*p.BatchSize)
	}
	if p.Delay != nil {
		c.Delay = IntPtr(*p.Delay)
	}
	if p.StartTS != nil {
		ts := *p.StartTS
		c.StartTS = &ts
	}
	return c
}

// ClonePhases deep-copies a phase list. A nil list stays nil.
func ClonePhases(phases []Phase) []Phase {
	if phases == nil {
		return nil
	}
	out := make([]Phase, len(phases))
	for i, p := range phases {
		out[i] = p.Clone()
	}
	return out
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// =============================================================================
// Rollout Plan
// =============================================================================

// RolloutPlan is the transient plan built during one deployment-creation session.
type RolloutPlan struct {
	// Phases may be empty, meaning a single implicit 100% phase.
	Phases []Phase

	// StartTime nil means "start immediately"; it is resolved to the current
	// instant only at submission.
	StartTime *time.Time

	ArtifactName      string
	Retries           int
	ForceInstallation bool
	Delta             bool
	UpdateControlMap  map[string]any
}

// IsImmediate reports whether the plan starts at submission time.
func (p RolloutPlan) IsImmediate() bool {
	return p.StartTime == nil
}

// =============================================================================
// Canonical Patterns
// =============================================================================

// CanonicalPhase is the comparable form of a Phase used for pattern equality.
// Two canonical phases are the same iff they are == equal.
type CanonicalPhase struct {
	BatchSize int       `json:"batch_size"`
	Delay     int       `json:"delay,omitempty"`
	DelayUnit DelayUnit `json:"delay_unit,omitempty"`
}

// Pattern is an ordered list of canonical phases, independent of absolute timing.
type Pattern []CanonicalPhase

// Phases expands the pattern back into editable phases, without start times.
func (p Pattern) Phases() []Phase {
	out := make([]Phase, len(p))
	for i, cp := range p {
		out[i] = Phase{BatchSize: IntPtr(cp.BatchSize)}
		if cp.Delay > 0 {
			out[i].Delay = IntPtr(cp.Delay)
			out[i].DelayUnit = cp.DelayUnit
		}
	}
	return out
}

// =============================================================================
// Timestamps
// =============================================================================

// TimestampLayout is ISO-8601 in UTC with milliseconds, e.g.
// "2024-01-01T02:00:00.000Z".
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout, the format used on the wire.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
