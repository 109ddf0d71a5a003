package planfile

import "github.com/artpar/rollout/internal/core/domain"

// =============================================================================
// PlanFile - Main Output Type
// =============================================================================

// PlanFile is a parsed rollout plan file.
type PlanFile struct {
	Plan   domain.RolloutPlan
	Target domain.Selection

	// DeviceCount is the population assumed for offline validation. Zero
	// means unknown, which skips the per-device batch check.
	DeviceCount int
}

// Resolution returns the target as request building sees it.
func (f *PlanFile) Resolution() domain.Resolution {
	r := domain.Resolution{DeviceCount: f.DeviceCount, CountKnown: f.DeviceCount > 0}
	switch f.Target.Kind {
	case domain.SelectionDevices:
		r.DeviceIDs = f.Target.DeviceIDs
		r.DeviceCount = len(f.Target.DeviceIDs)
		r.CountKnown = true
	case domain.SelectionAllDevices:
		r.AllDevices = true
	case domain.SelectionGroup:
		r.GroupName = f.Target.GroupName
	case domain.SelectionFilter:
		r.FilterID = f.Target.FilterID
	}
	return r
}

// =============================================================================
// YAML Document Types
// =============================================================================

// document mirrors the on-disk layout.
//
//	artifact: release-1.2
//	start: 2024-01-01T00:00:00Z   # omitted or "now" for immediate
//	target:
//	  group: canary
//	  device_count: 50
//	retries: 3
//	phases:
//	  - batch: 10
//	    delay: 2
//	    unit: hours
//	  - batch: 90
type document struct {
	Artifact          string         `yaml:"artifact"`
	Start             string         `yaml:"start"`
	Target            targetDoc      `yaml:"target"`
	Retries           int            `yaml:"retries"`
	ForceInstallation bool           `yaml:"force_installation"`
	Delta             bool           `yaml:"delta"`
	UpdateControlMap  map[string]any `yaml:"update_control_map"`
	Phases            []phaseDoc     `yaml:"phases"`
}

type targetDoc struct {
	Devices     []string `yaml:"devices"`
	AllDevices  bool     `yaml:"all_devices"`
	Group       string   `yaml:"group"`
	Filter      string   `yaml:"filter"`
	DeviceCount int      `yaml:"device_count"`
}

type phaseDoc struct {
	Batch *int   `yaml:"batch"`
	Delay *int   `yaml:"delay"`
	Unit  string `yaml:"unit"`
}
