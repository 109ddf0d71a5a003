package deployment

import (
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/core/phases"
	"github.com/artpar/rollout/internal/core/targeting"
)

// =============================================================================
// Submission Gate
// =============================================================================

// SubmitCheck contains everything the gate looks at.
type SubmitCheck struct {
	Target   targeting.State
	Plan     domain.RolloutPlan
	InFlight bool
}

// SubmitDecision is the result of CheckSubmission.
type SubmitDecision struct {
	// Allowed indicates whether the submission may reach the network.
	Allowed bool

	// Refusal classifies why the submission was stopped. Empty if Allowed.
	Refusal Refusal

	// Reason is a human-readable explanation. Empty if Allowed.
	Reason string
}

// CheckSubmission decides whether a planned rollout may be submitted.
//
// Checks, in order:
//   - another submission of the same session is in flight
//   - no artifact was chosen
//   - the target is not submittable (nothing selected, or a count is pending)
//   - the phases fail validation for the resolved device count
//
// Example:
//
//	decision := CheckSubmission(SubmitCheck{Target: state, Plan: plan})
//	if !decision.Allowed {
//	    return errors.New(decision.Reason)
//	}
func CheckSubmission(c SubmitCheck) SubmitDecision {
	if c.InFlight {
		return SubmitDecision{Refusal: RefusalInFlight, Reason: "a submission is already in progress"}
	}
	if c.Plan.ArtifactName == "" {
		return SubmitDecision{Refusal: RefusalNoArtifact, Reason: "no release selected"}
	}

	switch c.Target.Status {
	case targeting.StatusNoSelection:
		return SubmitDecision{Refusal: RefusalTargetUnresolved, Reason: "no devices selected"}
	case targeting.StatusPending:
		return SubmitDecision{Refusal: RefusalTargetUnresolved, Reason: "device count is still being resolved"}
	}
	if !c.Target.Submittable() {
		return SubmitDecision{Refusal: RefusalTargetUnresolved, Reason: "target cannot be deployed to"}
	}

	target := targeting.Resolve(c.Target)
	if ok, reason := phases.CheckPhases(c.Plan.Phases, target.DeviceCount, target.HasFilter()); !ok {
		return SubmitDecision{Refusal: RefusalValidation, Reason: reason}
	}

	return SubmitDecision{Allowed: true}
}

// =============================================================================
// Request Building
// =============================================================================

// BuildCreateRequest builds the create-deployment body.
//
// start is the instant the first phase begins; for an immediate rollout the
// caller passes the submission instant. Phases are omitted for an immediate
// single-phase rollout. Retries are only sent when the tenant can retry and a
// positive count was chosen.
func BuildCreateRequest(plan domain.RolloutPlan, target domain.Resolution, start time.Time, canRetry bool) CreateRequest {
	req := CreateRequest{
		Name:              target.DisplayName(),
		ArtifactName:      plan.ArtifactName,
		FilterID:          target.FilterID,
		AllDevices:        target.AllDevices && target.FilterID == "",
		ForceInstallation: plan.ForceInstallation,
		AutogenerateDelta: plan.Delta,
		UpdateControlMap:  plan.UpdateControlMap,
	}

	switch {
	case len(target.DeviceIDs) > 0:
		req.Devices = append([]string(nil), target.DeviceIDs...)
	case !target.AllDevices && target.FilterID == "":
		req.Group = target.GroupName
	}

	if len(plan.Phases) > 0 || !plan.IsImmediate() {
		req.Phases = phaseRequests(phases.StampStartTimes(plan.Phases, start))
	}

	if canRetry && plan.Retries > 0 {
		retries := plan.Retries
		req.Retries = &retries
	}

	return req
}

func phaseRequests(stamped []domain.Phase) []PhaseRequest {
	out := make([]PhaseRequest, len(stamped))
	for i, p := range stamped {
		pr := PhaseRequest{BatchSize: p.BatchSize}
		if p.StartTS != nil {
			pr.StartTS = domain.FormatTimestamp(*p.StartTS)
		}
		if d := p.DelayValue(); d > 0 {
			pr.Delay = domain.IntPtr(d)
			unit := p.DelayUnit
			if unit == domain.DelayUnitNone {
				unit = domain.DefaultDelayUnit
			}
			pr.DelayUnit = string(unit)
		}
		out[i] = pr
	}
	return out
}
