package phases

import (
	"testing"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Test Helpers
// =============================================================================

func batch(size int) domain.Phase {
	return domain.Phase{BatchSize: domain.IntPtr(size)}
}

func delayed(size, delay int, unit domain.DelayUnit) domain.Phase {
	return domain.Phase{BatchSize: domain.IntPtr(size), Delay: domain.IntPtr(delay), DelayUnit: unit}
}

func remainder() domain.Phase {
	return domain.Phase{}
}

// =============================================================================
// ValidatePhases Tests
// =============================================================================

func TestValidatePhases(t *testing.T) {
	testCases := []struct {
		name      string
		phases    []domain.Phase
		count     int
		hasFilter bool
		expected  bool
	}{
		{"nil phases", nil, 10, false, true},
		{"empty phases", []domain.Phase{}, 0, false, true},
		{"single full phase", []domain.Phase{batch(100)}, 10, false, true},
		{"single phase without batch", []domain.Phase{remainder()}, 10, false, true},
		{"single partial phase", []domain.Phase{batch(50)}, 10, false, false},
		{"two phases with delay", []domain.Phase{delayed(10, 2, domain.DelayUnitHours), batch(90)}, 0, false, true},
		{"sum over 100", []domain.Phase{batch(60), batch(60)}, 0, false, false},
		{"sum under 100", []domain.Phase{batch(30), batch(60)}, 0, false, false},
		{"inferred remainder", []domain.Phase{batch(10), remainder()}, 0, false, true},
		{"inferred remainder of zero", []domain.Phase{batch(100), remainder()}, 0, false, true},
		{"negative remainder", []domain.Phase{batch(60), batch(50), remainder()}, 0, false, false},
		{"missing middle batch", []domain.Phase{batch(10), remainder(), batch(90)}, 0, false, false},
		{"zero first batch", []domain.Phase{batch(0), batch(100)}, 0, false, false},
		{"first batch over 100", []domain.Phase{batch(101), remainder()}, 0, false, false},
		{"last batch negative", []domain.Phase{batch(100), batch(-1)}, 0, false, false},
		{"one device with 10 percent", []domain.Phase{batch(10), batch(90)}, 1, false, false},
		{"one device with filter", []domain.Phase{batch(10), batch(90)}, 1, true, true},
		{"ten devices with 10 percent", []domain.Phase{batch(10), batch(90)}, 10, false, true},
		{"five devices with 10 percent", []domain.Phase{batch(10), batch(90)}, 5, false, false},
		{"five devices with 20 percent", []domain.Phase{batch(20), batch(80)}, 5, false, true},
		{"large population with 1 percent", []domain.Phase{batch(1), batch(99)}, 500, false, true},
		{"unknown count skips device check", []domain.Phase{batch(1), batch(99)}, 0, false, true},
		{"delay without unit", []domain.Phase{{BatchSize: domain.IntPtr(10), Delay: domain.IntPtr(2)}, remainder()}, 0, false, false},
		{"zero delay without unit", []domain.Phase{{BatchSize: domain.IntPtr(10), Delay: domain.IntPtr(0)}, remainder()}, 0, false, true},
		{"negative delay", []domain.Phase{delayed(10, -1, domain.DelayUnitHours), remainder()}, 0, false, false},
		{"unknown delay unit", []domain.Phase{delayed(10, 1, domain.DelayUnit("weeks")), remainder()}, 0, false, false},
		{"back to back phases", []domain.Phase{batch(50), batch(50)}, 0, false, true},
		{"delay of a year", []domain.Phase{delayed(50, 365, domain.DelayUnitDays), batch(50)}, 0, false, true},
		{"delay over a year in hours", []domain.Phase{delayed(50, 3000000, domain.DelayUnitHours), batch(50)}, 0, false, false},
		{"delay over a year in minutes", []domain.Phase{delayed(50, 600000, domain.DelayUnitMinutes), batch(50)}, 0, false, false},
		{"delay over a year in days", []domain.Phase{delayed(50, 366, domain.DelayUnitDays), batch(50)}, 0, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ValidatePhases(tc.phases, tc.count, tc.hasFilter))
		})
	}
}

func TestCheckPhases_Reasons(t *testing.T) {
	ok, reason := CheckPhases([]domain.Phase{batch(60), batch(60)}, 0, false)
	assert.False(t, ok)
	assert.Contains(t, reason, "120%")

	ok, reason = CheckPhases([]domain.Phase{batch(10), batch(90)}, 1, false)
	assert.False(t, ok)
	assert.Contains(t, reason, "contains no device")

	ok, reason = CheckPhases([]domain.Phase{{BatchSize: domain.IntPtr(10), Delay: domain.IntPtr(3)}, remainder()}, 0, false)
	assert.False(t, ok)
	assert.Contains(t, reason, "no unit")

	ok, reason = CheckPhases([]domain.Phase{delayed(50, 3000000, domain.DelayUnitHours), batch(50)}, 0, false)
	assert.False(t, ok)
	assert.Contains(t, reason, "exceeds 8760 hours")

	ok, reason = CheckPhases([]domain.Phase{batch(10), remainder()}, 0, false)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestValidPhases_SumToHundred(t *testing.T) {
	plans := [][]domain.Phase{
		{batch(10), remainder()},
		{batch(10), batch(90)},
		{delayed(5, 1, domain.DelayUnitDays), delayed(15, 2, domain.DelayUnitHours), remainder()},
		{batch(33), batch(33), batch(34)},
		{batch(25), batch(25), batch(25), remainder()},
	}

	for _, plan := range plans {
		if !assert.True(t, ValidatePhases(plan, 0, false)) {
			continue
		}
		sum := 0
		for _, phase := range plan[:len(plan)-1] {
			sum += *phase.BatchSize
		}
		assert.Equal(t, 100, sum+InferredLastBatch(plan))
	}
}

func TestInferredLastBatch(t *testing.T) {
	assert.Equal(t, 100, InferredLastBatch(nil))
	assert.Equal(t, 90, InferredLastBatch([]domain.Phase{batch(10), remainder()}))
	assert.Equal(t, 70, InferredLastBatch([]domain.Phase{batch(10), batch(70)}))
	assert.Equal(t, -20, InferredLastBatch([]domain.Phase{batch(60), batch(60), remainder()}))
}
