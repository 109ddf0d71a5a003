// Package deployment provides pure functions for deployment submission.
//
// This package contains the functional core logic for deciding whether a
// planned rollout may be submitted and for turning it into the request body
// of the deployment creation service. All functions are pure (no I/O, no
// clock reads, no side effects).
//
// # Functions
//
//   - Gate: Decide whether a submission may reach the network (CheckSubmission)
//   - Request: Build the create-deployment request body (BuildCreateRequest)
//
// # Usage
//
// The planner session (internal/shell/planner) runs the gate before every
// submission attempt and builds the request at the moment of submission:
//
//	decision := deployment.CheckSubmission(check)
//	if !decision.Allowed {
//	    return refuse(decision)
//	}
//	req := deployment.BuildCreateRequest(plan, target, now, canRetry)
package deployment
