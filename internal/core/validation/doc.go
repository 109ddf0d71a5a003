// Package validation provides pure validation functions for API handlers.
//
// This package checks the shape of API requests before they reach a planning
// session. Rollout rules themselves (batch sums, per-device checks) live in
// package phases; a request that passes here can still be refused at submit.
// All functions are pure (no I/O, no side effects).
//
// # Functions
//
//   - ValidateTargetFields: Validate a target selection request
//   - ValidatePlanFields: Validate numeric plan fields
//
// # Usage
//
//	if field, msg := validation.ValidateTargetFields(kind, ids, group, filter); field != "" {
//	    // Return 400 Bad Request with msg
//	}
package validation
