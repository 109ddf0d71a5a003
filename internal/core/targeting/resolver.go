// Package targeting resolves a deployment target selection into a device count
// and request fields.
//
// This is part of the Functional Core - Transition is a pure state machine.
// Count lookups are requested through the returned Effect and performed by
// the imperative shell, which feeds the answer back as a CountResolved or
// CountFailed event tagged with the generation it was issued for.
package targeting

import (
	"github.com/artpar/rollout/internal/core/domain"
)

// =============================================================================
// States
// =============================================================================

// Status is the resolver state.
type Status string

const (
	StatusNoSelection    Status = "no_selection"
	StatusPending        Status = "pending"
	StatusResolved       Status = "resolved"
	StatusFilterSelected Status = "filter_selected"
)

// State is the complete resolver state. The zero value is NoSelection.
type State struct {
	Status    Status           `json:"status"`
	Selection domain.Selection `json:"selection"`

	// DeviceCount is 0 whenever the count is not known.
	DeviceCount int  `json:"device_count"`
	CountKnown  bool `json:"count_known"`

	// Preview records whether a filter selection asked for a preview count,
	// so a refresh repeats the same lookup.
	Preview bool `json:"preview,omitempty"`

	// Generation increases with every selection change. Count answers carry
	// the generation they were requested for.
	Generation uint64 `json:"generation"`
}

// Submittable reports whether a deployment may be created for this target.
// Filter targets may submit without a count since the server resolves them.
func (s State) Submittable() bool {
	return s.Status == StatusResolved || s.Status == StatusFilterSelected
}

// =============================================================================
// Events
// =============================================================================

// Event is an input to Transition.
type Event interface {
	isEvent()
}

// SelectDevices targets an explicit list of devices.
type SelectDevices struct{ IDs []string }

// SelectAllDevices targets every accepted device.
type SelectAllDevices struct{}

// SelectGroup targets a named static group.
type SelectGroup struct{ Name string }

// SelectFilter targets a saved filter. Preview requests a page-limited count
// for display; the filter stays submittable either way.
type SelectFilter struct {
	ID      string
	Preview bool
}

// Clear drops the selection.
type Clear struct{}

// Refresh re-issues the count lookup for the current selection.
type Refresh struct{}

// CountResolved delivers a count for the given generation.
type CountResolved struct {
	Generation uint64
	Count      int
}

// CountFailed reports a failed count lookup for the given generation.
type CountFailed struct {
	Generation uint64
}

func (SelectDevices) isEvent()    {}
func (SelectAllDevices) isEvent() {}
func (SelectGroup) isEvent()      {}
func (SelectFilter) isEvent()     {}
func (Clear) isEvent()            {}
func (Refresh) isEvent()          {}
func (CountResolved) isEvent()    {}
func (CountFailed) isEvent()      {}

// =============================================================================
// Effects
// =============================================================================

// QueryKind names the count lookup to perform.
type QueryKind string

const (
	QueryAcceptedDevices QueryKind = "accepted_devices"
	QueryGroup           QueryKind = "group"
	QueryFilterPreview   QueryKind = "filter_preview"
)

// FetchRequest asks the shell to look up a device count.
type FetchRequest struct {
	Generation uint64
	Kind       QueryKind
	GroupName  string
	FilterID   string
}

// Effect is what the shell has to do after a transition.
type Effect struct {
	// Fetch is set when a count lookup must be issued.
	Fetch *FetchRequest

	// Discarded is true when a count answer belonged to a superseded selection.
	Discarded bool
}

// =============================================================================
// Transition
// =============================================================================

// Transition applies ev to s and returns the new state plus the effect the
// shell must carry out.
//
// Selection changes always bump the generation, so any lookup still in flight
// for an earlier selection is ignored when its answer arrives.
func Transition(s State, ev Event) (State, Effect) {
	switch e := ev.(type) {
	case SelectDevices:
		ids := uniqueIDs(e.IDs)
		if len(ids) == 0 {
			return cleared(s), Effect{}
		}
		return State{
			Status:      StatusResolved,
			Selection:   domain.Selection{Kind: domain.SelectionDevices, DeviceIDs: ids},
			DeviceCount: len(ids),
			CountKnown:  true,
			Generation:  s.Generation + 1,
		}, Effect{}

	case SelectAllDevices:
		next := pending(s, domain.Selection{Kind: domain.SelectionAllDevices})
		return next, Effect{Fetch: &FetchRequest{Generation: next.Generation, Kind: QueryAcceptedDevices}}

	case SelectGroup:
		if e.Name == "" {
			return cleared(s), Effect{}
		}
		next := pending(s, domain.Selection{Kind: domain.SelectionGroup, GroupName: e.Name})
		return next, Effect{Fetch: &FetchRequest{Generation: next.Generation, Kind: QueryGroup, GroupName: e.Name}}

	case SelectFilter:
		if e.ID == "" {
			return cleared(s), Effect{}
		}
		next := State{
			Status:     StatusFilterSelected,
			Selection:  domain.Selection{Kind: domain.SelectionFilter, FilterID: e.ID},
			Preview:    e.Preview,
			Generation: s.Generation + 1,
		}
		if !e.Preview {
			return next, Effect{}
		}
		return next, Effect{Fetch: &FetchRequest{Generation: next.Generation, Kind: QueryFilterPreview, FilterID: e.ID}}

	case Clear:
		return cleared(s), Effect{}

	case Refresh:
		return refresh(s)

	case CountResolved:
		if e.Generation != s.Generation {
			return s, Effect{Discarded: true}
		}
		switch s.Status {
		case StatusPending:
			s.Status = StatusResolved
		case StatusFilterSelected:
		default:
			return s, Effect{Discarded: true}
		}
		s.DeviceCount = max(e.Count, 0)
		s.CountKnown = true
		return s, Effect{}

	case CountFailed:
		if e.Generation != s.Generation {
			return s, Effect{Discarded: true}
		}
		// A failed lookup leaves the target pending; the caller may Refresh.
		return s, Effect{}
	}

	return s, Effect{}
}

func pending(s State, sel domain.Selection) State {
	return State{
		Status:     StatusPending,
		Selection:  sel,
		Generation: s.Generation + 1,
	}
}

func cleared(s State) State {
	return State{
		Status:     StatusNoSelection,
		Generation: s.Generation + 1,
	}
}

// refresh issues a new lookup for the current selection under a new generation.
func refresh(s State) (State, Effect) {
	switch s.Selection.Kind {
	case domain.SelectionAllDevices:
		return Transition(s, SelectAllDevices{})
	case domain.SelectionGroup:
		return Transition(s, SelectGroup{Name: s.Selection.GroupName})
	case domain.SelectionFilter:
		return Transition(s, SelectFilter{ID: s.Selection.FilterID, Preview: s.Preview})
	}
	return s, Effect{}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// =============================================================================
// Resolve
// =============================================================================

// Resolve returns the request-facing view of s. Exactly one of DeviceIDs,
// GroupName, FilterID and AllDevices is set for a non-empty selection.
func Resolve(s State) domain.Resolution {
	r := domain.Resolution{
		DeviceCount: s.DeviceCount,
		CountKnown:  s.CountKnown,
	}
	switch s.Selection.Kind {
	case domain.SelectionDevices:
		r.DeviceIDs = append([]string(nil), s.Selection.DeviceIDs...)
	case domain.SelectionAllDevices:
		r.AllDevices = true
	case domain.SelectionGroup:
		r.GroupName = s.Selection.GroupName
	case domain.SelectionFilter:
		r.FilterID = s.Selection.FilterID
	}
	return r
}
