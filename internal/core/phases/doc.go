// Package phases provides pure functions for phased rollout planning.
//
// This package contains the functional core logic for checking, scheduling
// and remembering rollout patterns. All functions are pure (no I/O, no clock
// reads, no side effects); the current instant is always passed in.
//
// # Functions
//
//   - Validation: Check a phase list against the target population (ValidatePhases, CheckPhases)
//   - Timing: Chain phase start times from a root start (ResolveStartTime, StampStartTimes)
//   - Standardizing: Reduce phases to a comparable pattern (Standardize, SamePattern)
//   - History: Keep the recently used distinct patterns (RecordPattern)
//   - Presets: Default custom pattern and menu labels (DefaultCustomPattern, Describe)
//
// # Usage
//
// The planner session (internal/shell/planner) gates submission on
// CheckPhases, stamps start times right before calling the deployment
// service, and records the standardized pattern on success.
//
//	if ok, reason := phases.CheckPhases(plan.Phases, count, hasFilter); !ok {
//	    return refuse(reason)
//	}
//	stamped := phases.StampStartTimes(plan.Phases, now)
//	history = phases.RecordPattern(history, phases.Standardize(stamped))
package phases
