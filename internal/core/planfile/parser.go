package planfile

import (
	"fmt"
	"strings"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// Parse parses a YAML rollout plan file.
// This is a pure function - no I/O, no side effects.
//
// Parse checks structure only (types, units, exactly one target). Whether the
// phases add up is left to phases.CheckPhases so that the same rules apply to
// files and interactive sessions.
func Parse(content []byte) (*PlanFile, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, ErrEmptyInput
	}

	var doc document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	if strings.TrimSpace(doc.Artifact) == "" {
		return nil, NewParseError("artifact", "artifact is required", ErrNoArtifact)
	}

	target, err := convertTarget(doc.Target)
	if err != nil {
		return nil, err
	}
	if doc.Target.DeviceCount < 0 {
		return nil, NewParseError("target.device_count", "must not be negative", ErrInvalidDeviceCnt)
	}

	start, err := parseStart(doc.Start)
	if err != nil {
		return nil, err
	}

	phases := make([]domain.Phase, 0, len(doc.Phases))
	for i, pd := range doc.Phases {
		p, err := convertPhase(i, pd)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}

	return &PlanFile{
		Plan: domain.RolloutPlan{
			Phases:            phases,
			StartTime:         start,
			ArtifactName:      strings.TrimSpace(doc.Artifact),
			Retries:           doc.Retries,
			ForceInstallation: doc.ForceInstallation,
			Delta:             doc.Delta,
			UpdateControlMap:  doc.UpdateControlMap,
		},
		Target:      target,
		DeviceCount: doc.Target.DeviceCount,
	}, nil
}

// convertTarget enforces that exactly one targeting mode is set.
func convertTarget(t targetDoc) (domain.Selection, error) {
	var selections []domain.Selection
	if len(t.Devices) > 0 {
		selections = append(selections, domain.Selection{Kind: domain.SelectionDevices, DeviceIDs: t.Devices})
	}
	if t.AllDevices {
		selections = append(selections, domain.Selection{Kind: domain.SelectionAllDevices})
	}
	if t.Group != "" {
		selections = append(selections, domain.Selection{Kind: domain.SelectionGroup, GroupName: t.Group})
	}
	if t.Filter != "" {
		selections = append(selections, domain.Selection{Kind: domain.SelectionFilter, FilterID: t.Filter})
	}

	if len(selections) != 1 {
		return domain.Selection{}, NewParseError("target",
			fmt.Sprintf("expected one of devices, all_devices, group or filter, got %d", len(selections)),
			ErrAmbiguousTarget)
	}
	return selections[0], nil
}

func parseStart(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, NewParseError("start", "expected RFC 3339 time or \"now\"", ErrInvalidStart)
	}
	t = t.UTC()
	return &t, nil
}

func convertPhase(i int, pd phaseDoc) (domain.Phase, error) {
	field := fmt.Sprintf("phases[%d]", i)

	unit, err := domain.ParseDelayUnit(pd.Unit)
	if err != nil {
		return domain.Phase{}, NewParseError(field+".unit", err.Error(), ErrInvalidPhase)
	}
	if pd.Batch != nil && (*pd.Batch < 0 || *pd.Batch > 100) {
		return domain.Phase{}, NewParseError(field+".batch", "must be between 0 and 100", ErrInvalidPhase)
	}
	if pd.Delay != nil && *pd.Delay < 0 {
		return domain.Phase{}, NewParseError(field+".delay", "must not be negative", ErrInvalidPhase)
	}

	p := domain.Phase{DelayUnit: unit}
	if pd.Batch != nil {
		p.BatchSize = domain.IntPtr(*pd.Batch)
	}
	if pd.Delay != nil {
		p.Delay = domain.IntPtr(*pd.Delay)
	}
	return p, nil
}
