package deployment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/core/targeting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var submitTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func resolvedGroup(t *testing.T, name string, count int) targeting.State {
	t.Helper()
	s, eff := targeting.Transition(targeting.State{}, targeting.SelectGroup{Name: name})
	require.NotNil(t, eff.Fetch)
	s, _ = targeting.Transition(s, targeting.CountResolved{Generation: eff.Fetch.Generation, Count: count})
	return s
}

func twoPhasePlan() domain.RolloutPlan {
	return domain.RolloutPlan{
		ArtifactName: "release-1.2",
		Phases: []domain.Phase{
			{BatchSize: domain.IntPtr(10), Delay: domain.IntPtr(2), DelayUnit: domain.DelayUnitHours},
			{BatchSize: domain.IntPtr(90)},
		},
	}
}

// =============================================================================
// CheckSubmission Tests
// =============================================================================

func TestCheckSubmission_Allowed(t *testing.T) {
	decision := CheckSubmission(SubmitCheck{Target: resolvedGroup(t, "canary", 50), Plan: twoPhasePlan()})

	assert.True(t, decision.Allowed)
	assert.Equal(t, RefusalNone, decision.Refusal)
	assert.Empty(t, decision.Reason)
}

func TestCheckSubmission_Refusals(t *testing.T) {
	pending, _ := targeting.Transition(targeting.State{}, targeting.SelectGroup{Name: "canary"})
	single, _ := targeting.Transition(targeting.State{}, targeting.SelectDevices{IDs: []string{"dev-1"}})
	filter, _ := targeting.Transition(targeting.State{}, targeting.SelectFilter{ID: "flt-1"})

	noArtifact := twoPhasePlan()
	noArtifact.ArtifactName = ""

	overfull := twoPhasePlan()
	overfull.Phases[0].BatchSize = domain.IntPtr(60)
	overfull.Phases[1].BatchSize = domain.IntPtr(60)

	testCases := []struct {
		name     string
		check    SubmitCheck
		expected Refusal
	}{
		{"in flight", SubmitCheck{Target: resolvedGroup(t, "g", 50), Plan: twoPhasePlan(), InFlight: true}, RefusalInFlight},
		{"no artifact", SubmitCheck{Target: resolvedGroup(t, "g", 50), Plan: noArtifact}, RefusalNoArtifact},
		{"no selection", SubmitCheck{Target: targeting.State{}, Plan: twoPhasePlan()}, RefusalTargetUnresolved},
		{"pending count", SubmitCheck{Target: pending, Plan: twoPhasePlan()}, RefusalTargetUnresolved},
		{"sum over 100", SubmitCheck{Target: resolvedGroup(t, "g", 50), Plan: overfull}, RefusalValidation},
		{"batch too small for one device", SubmitCheck{Target: single, Plan: twoPhasePlan()}, RefusalValidation},
		{"filter skips device check", SubmitCheck{Target: filter, Plan: twoPhasePlan()}, RefusalNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision := CheckSubmission(tc.check)
			assert.Equal(t, tc.expected, decision.Refusal)
			assert.Equal(t, tc.expected == RefusalNone, decision.Allowed)
			if !decision.Allowed {
				assert.NotEmpty(t, decision.Reason)
			}
		})
	}
}

// =============================================================================
// BuildCreateRequest Tests
// =============================================================================

func TestBuildCreateRequest_Devices(t *testing.T) {
	target := domain.Resolution{DeviceIDs: []string{"dev-1", "dev-2"}, DeviceCount: 2, CountKnown: true}

	req := BuildCreateRequest(domain.RolloutPlan{ArtifactName: "rel"}, target, submitTime, false)

	assert.Equal(t, "dev-1", req.Name)
	assert.Equal(t, []string{"dev-1", "dev-2"}, req.Devices)
	assert.Empty(t, req.Group)
	assert.False(t, req.AllDevices)
	assert.Empty(t, req.FilterID)
	assert.Nil(t, req.Phases)
	assert.Nil(t, req.Retries)
}

func TestBuildCreateRequest_Group(t *testing.T) {
	req := BuildCreateRequest(twoPhasePlan(), domain.Resolution{GroupName: "canary", DeviceCount: 20}, submitTime, false)

	assert.Equal(t, "canary", req.Name)
	assert.Equal(t, "canary", req.Group)
	assert.Nil(t, req.Devices)
	assert.False(t, req.AllDevices)
}

func TestBuildCreateRequest_AllDevices(t *testing.T) {
	req := BuildCreateRequest(twoPhasePlan(), domain.Resolution{AllDevices: true, DeviceCount: 20}, submitTime, false)

	assert.Equal(t, domain.AllDevicesName, req.Name)
	assert.True(t, req.AllDevices)
	assert.Empty(t, req.Group)
	assert.Nil(t, req.Devices)
}

func TestBuildCreateRequest_FilterIsAuthoritative(t *testing.T) {
	target := domain.Resolution{AllDevices: true, FilterID: "flt-1"}

	req := BuildCreateRequest(twoPhasePlan(), target, submitTime, false)

	assert.Equal(t, "flt-1", req.FilterID)
	assert.False(t, req.AllDevices)
	assert.Empty(t, req.Group)
	assert.Nil(t, req.Devices)
}

func TestBuildCreateRequest_StampsPhases(t *testing.T) {
	req := BuildCreateRequest(twoPhasePlan(), domain.Resolution{GroupName: "g"}, submitTime, false)

	require.Len(t, req.Phases, 2)
	assert.Equal(t, 10, *req.Phases[0].BatchSize)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", req.Phases[0].StartTS)
	assert.Equal(t, 2, *req.Phases[0].Delay)
	assert.Equal(t, "hours", req.Phases[0].DelayUnit)
	assert.Equal(t, 90, *req.Phases[1].BatchSize)
	assert.Equal(t, "2024-01-01T02:00:00.000Z", req.Phases[1].StartTS)
	assert.Nil(t, req.Phases[1].Delay)
}

func TestBuildCreateRequest_ScheduledSinglePhase(t *testing.T) {
	start := submitTime.Add(24 * time.Hour)
	plan := domain.RolloutPlan{ArtifactName: "rel", StartTime: &start}

	req := BuildCreateRequest(plan, domain.Resolution{GroupName: "g"}, start, false)

	require.Len(t, req.Phases, 1)
	assert.Equal(t, 100, *req.Phases[0].BatchSize)
	assert.Equal(t, "2024-01-02T00:00:00.000Z", req.Phases[0].StartTS)
}

func TestBuildCreateRequest_Retries(t *testing.T) {
	plan := twoPhasePlan()
	plan.Retries = 3

	withCapability := BuildCreateRequest(plan, domain.Resolution{GroupName: "g"}, submitTime, true)
	withoutCapability := BuildCreateRequest(plan, domain.Resolution{GroupName: "g"}, submitTime, false)
	plan.Retries = 0
	zeroRetries := BuildCreateRequest(plan, domain.Resolution{GroupName: "g"}, submitTime, true)

	require.NotNil(t, withCapability.Retries)
	assert.Equal(t, 3, *withCapability.Retries)
	assert.Nil(t, withoutCapability.Retries)
	assert.Nil(t, zeroRetries.Retries)
}

func TestBuildCreateRequest_Flags(t *testing.T) {
	plan := twoPhasePlan()
	plan.ForceInstallation = true
	plan.Delta = true
	plan.UpdateControlMap = map[string]any{"priority": 1}

	req := BuildCreateRequest(plan, domain.Resolution{GroupName: "g"}, submitTime, false)

	assert.True(t, req.ForceInstallation)
	assert.True(t, req.AutogenerateDelta)
	assert.Equal(t, map[string]any{"priority": 1}, req.UpdateControlMap)
}

func TestBuildCreateRequest_DoesNotMutatePlan(t *testing.T) {
	plan := twoPhasePlan()

	BuildCreateRequest(plan, domain.Resolution{GroupName: "g"}, submitTime, false)

	for _, p := range plan.Phases {
		assert.Nil(t, p.StartTS)
	}
}

func TestCreateRequest_JSON(t *testing.T) {
	req := BuildCreateRequest(twoPhasePlan(), domain.Resolution{GroupName: "canary"}, submitTime, false)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "canary",
		"artifact_name": "release-1.2",
		"group": "canary",
		"all_devices": false,
		"phases": [
			{"batch_size": 10, "start_ts": "2024-01-01T00:00:00.000Z", "delay": 2, "delay_unit": "hours"},
			{"batch_size": 90, "start_ts": "2024-01-01T02:00:00.000Z"}
		],
		"force_installation": false,
		"autogenerate_delta": false
	}`, string(data))
}
