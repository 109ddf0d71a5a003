package domain

// =============================================================================
// Target Selection
// =============================================================================

// SelectionKind discriminates the mutually exclusive targeting modes.
type SelectionKind string

const (
	SelectionNone       SelectionKind = ""
	SelectionDevices    SelectionKind = "devices"
	SelectionAllDevices SelectionKind = "all_devices"
	SelectionGroup      SelectionKind = "group"
	SelectionFilter     SelectionKind = "filter"
)

// AllDevicesName is the display name used for the all-devices target.
const AllDevicesName = "All devices"

// Selection is the user's current targeting choice. Only the fields belonging
// to Kind are meaningful.
type Selection struct {
	Kind      SelectionKind `json:"kind"`
	DeviceIDs []string      `json:"device_ids,omitempty"`
	GroupName string        `json:"group,omitempty"`
	FilterID  string        `json:"filter_id,omitempty"`
}

// Resolution is what the target resolver hands to request building: exactly
// one of DeviceIDs, GroupName, FilterID or AllDevices is set.
type Resolution struct {
	DeviceIDs   []string
	GroupName   string
	FilterID    string
	AllDevices  bool
	DeviceCount int

	// CountKnown is false for filter targets without a preview count and for
	// targets whose count fetch is still pending.
	CountKnown bool
}

// HasFilter reports whether the target is a saved filter.
func (r Resolution) HasFilter() bool {
	return r.FilterID != ""
}

// DisplayName is the deployment name the console uses for this target: the
// first device id, the group name, or "All devices".
func (r Resolution) DisplayName() string {
	switch {
	case len(r.DeviceIDs) > 0:
		return r.DeviceIDs[0]
	case r.GroupName != "":
		return r.GroupName
	default:
		return AllDevicesName
	}
}
