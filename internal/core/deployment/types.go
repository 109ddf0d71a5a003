package deployment

// =============================================================================
// Create Request Types
// =============================================================================

// CreateRequest is the body sent to the deployment creation service.
// Devices, Group, FilterID and AllDevices are mutually exclusive targets.
type CreateRequest struct {
	Name              string         `json:"name"`
	ArtifactName      string         `json:"artifact_name"`
	Devices           []string       `json:"devices,omitempty"`
	Group             string         `json:"group,omitempty"`
	AllDevices        bool           `json:"all_devices"`
	FilterID          string         `json:"filter_id,omitempty"`
	Phases            []PhaseRequest `json:"phases,omitempty"`
	Retries           *int           `json:"retries,omitempty"`
	ForceInstallation bool           `json:"force_installation"`
	AutogenerateDelta bool           `json:"autogenerate_delta"`
	UpdateControlMap  map[string]any `json:"update_control_map,omitempty"`
}

// PhaseRequest is one phase of a CreateRequest.
type PhaseRequest struct {
	BatchSize *int   `json:"batch_size,omitempty"`
	StartTS   string `json:"start_ts"`
	Delay     *int   `json:"delay,omitempty"`
	DelayUnit string `json:"delay_unit,omitempty"`
}

// =============================================================================
// Submission Gate Types
// =============================================================================

// Refusal names the reason a submission is stopped before the network.
type Refusal string

const (
	RefusalNone             Refusal = ""
	RefusalInFlight         Refusal = "in_flight"
	RefusalNoArtifact       Refusal = "no_artifact"
	RefusalTargetUnresolved Refusal = "target_unresolved"
	RefusalValidation       Refusal = "validation_failed"
)
