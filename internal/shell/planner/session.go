package planner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/rollout/internal/core/deployment"
	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/core/phases"
	"github.com/artpar/rollout/internal/core/targeting"
	"github.com/artpar/rollout/internal/shell/deployments"
	"github.com/artpar/rollout/internal/shell/inventory"
	"github.com/artpar/rollout/internal/shell/store"
)

// =============================================================================
// Dependencies
// =============================================================================

// Deps are the collaborators shared by every session.
type Deps struct {
	Inventory   inventory.Client
	Deployments deployments.Client
	Settings    store.SettingsStore

	// CanRetry reports whether the tenant's plan allows deployment retries.
	CanRetry bool

	// FetchTimeout bounds each device count query. Zero means no bound
	// beyond the session's lifetime.
	FetchTimeout time.Duration

	// Now is the clock used to resolve "start immediately". Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// =============================================================================
// Submit Options / Outcome
// =============================================================================

// SubmitOptions carries the user's answers that accompany a submission.
type SubmitOptions struct {
	// Confirmed is set once the user has acknowledged the confirmation prompt.
	Confirmed bool

	// SaveRetriesDefault keeps the plan's retry count as the user's default.
	SaveRetriesDefault bool

	// NeedsConfirmation, when non-nil, replaces the user's confirmation preference.
	NeedsConfirmation *bool

	// CanRetry, when non-nil, overrides Deps.CanRetry for this submission.
	CanRetry *bool
}

// OutcomeStatus is the result kind of a Submit call that did not fail.
type OutcomeStatus string

const (
	OutcomeNeedsConfirmation OutcomeStatus = "needs_confirmation"
	OutcomeCreated           OutcomeStatus = "created"
)

// Outcome describes a Submit call that did not fail.
type Outcome struct {
	Status OutcomeStatus

	// Location of the created deployment. Set only when Created.
	Location string

	// Request is the body that was sent. Set only when Created.
	Request *deployment.CreateRequest

	// SettingsSaved is false if the deployment was created but the
	// preference update could not be written.
	SettingsSaved bool
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID     string
	UserID string

	Target     targeting.State
	CountError string

	Plan domain.RolloutPlan

	// StartTimes holds the derived start of each phase. Entries are nil
	// while the plan starts immediately.
	StartTimes []*time.Time

	CanSubmit    bool
	Reason       string
	Submitting   bool
	LastLocation string

	History           []domain.Pattern
	Retries           int
	NeedsConfirmation bool
}

// =============================================================================
// Session
// =============================================================================

// Session is one deployment-creation session. All methods are safe for
// concurrent use.
type Session struct {
	id     string
	userID string
	deps   Deps
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	target       targeting.State
	countErr     error
	plan         domain.RolloutPlan
	settings     domain.UserSettings
	inFlight     bool
	lastLocation string
}

// NewSession creates a session for userID. settings is the user's stored
// settings as read at session start; the plan's retry count starts from it.
func NewSession(id, userID string, settings domain.UserSettings, deps Deps) *Session {
	deps = deps.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:       id,
		userID:   userID,
		deps:     deps,
		logger:   deps.Logger.With("session_id", id, "user_id", userID),
		ctx:      ctx,
		cancel:   cancel,
		settings: settings.Clone(),
		plan:     domain.RolloutPlan{Retries: settings.Retries},
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.userID }

// Submitting reports whether a submission is in flight.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Close cancels outstanding count queries and waits for them to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// =============================================================================
// Target Selection
// =============================================================================

// SelectDevices targets an explicit list of device ids.
func (s *Session) SelectDevices(ids []string) error {
	return s.apply(targeting.SelectDevices{IDs: ids})
}

// SelectAllDevices targets every accepted device.
func (s *Session) SelectAllDevices() error {
	return s.apply(targeting.SelectAllDevices{})
}

// SelectGroup targets a static device group.
func (s *Session) SelectGroup(name string) error {
	return s.apply(targeting.SelectGroup{Name: name})
}

// SelectFilter targets a saved filter. With preview the number of matching
// devices is queried for display.
func (s *Session) SelectFilter(id string, preview bool) error {
	return s.apply(targeting.SelectFilter{ID: id, Preview: preview})
}

// ClearTarget removes the selection.
func (s *Session) ClearTarget() error {
	return s.apply(targeting.Clear{})
}

// RefreshCount re-queries the device count of the current selection.
func (s *Session) RefreshCount() error {
	return s.apply(targeting.Refresh{})
}

func (s *Session) apply(ev targeting.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	next, eff := targeting.Transition(s.target, ev)
	if next.Generation != s.target.Generation {
		s.countErr = nil
	}
	s.target = next

	if eff.Fetch != nil {
		s.startFetch(*eff.Fetch)
	}
	return nil
}

// startFetch runs one count query in the background. Callers hold s.mu.
func (s *Session) startFetch(req targeting.FetchRequest) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx := s.ctx
		if s.deps.FetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.deps.FetchTimeout)
			defer cancel()
		}

		count, err := s.queryCount(ctx, req)

		var ev targeting.Event = targeting.CountResolved{Generation: req.Generation, Count: count}
		if err != nil {
			ev = targeting.CountFailed{Generation: req.Generation}
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		next, eff := targeting.Transition(s.target, ev)
		if eff.Discarded {
			s.logger.Debug("discarding stale device count",
				"generation", req.Generation,
				"current_generation", s.target.Generation,
			)
			return
		}
		s.target = next
		s.countErr = err

		if err != nil {
			s.logger.Warn("device count query failed", "query", req.Kind, "error", err)
			return
		}
		s.logger.Debug("device count resolved", "query", req.Kind, "count", count)
	}()
}

func (s *Session) queryCount(ctx context.Context, req targeting.FetchRequest) (int, error) {
	switch req.Kind {
	case targeting.QueryGroup:
		return s.deps.Inventory.GroupDevicesCount(ctx, req.GroupName)
	case targeting.QueryFilterPreview:
		return s.deps.Inventory.FilterPreviewCount(ctx, req.FilterID)
	default:
		return s.deps.Inventory.AcceptedDevicesCount(ctx)
	}
}

// =============================================================================
// Plan Editing
// =============================================================================

// SetPlan replaces the plan being edited.
func (s *Session) SetPlan(plan domain.RolloutPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.plan = clonePlan(plan)
	return nil
}

// ApplyPattern replaces the plan's phases with the history entry at index.
func (s *Session) ApplyPattern(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if index < 0 || index >= len(s.settings.PreviousPhases) {
		return ErrPatternNotFound
	}
	s.plan.Phases = s.settings.PreviousPhases[index].Phases()
	return nil
}

// UseDefaultPattern replaces the plan's phases with the default two-phase
// pattern sized for the current target.
func (s *Session) UseDefaultPattern() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	target := targeting.Resolve(s.target)
	s.plan.Phases = phases.DefaultCustomPattern(target.DeviceCount, target.HasFilter())
	return nil
}

// UseSinglePhasePattern replaces the plan's phases with one phase covering
// every device.
func (s *Session) UseSinglePhasePattern() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.plan.Phases = phases.SinglePhasePattern()
	return nil
}

// =============================================================================
// Inspection
// =============================================================================

// CanSubmit reports whether Submit would currently reach the network, and
// if not, why.
func (s *Session) CanSubmit() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.checkLocked()
	return d.Allowed, d.Reason
}

func (s *Session) checkLocked() deployment.SubmitDecision {
	return deployment.CheckSubmission(deployment.SubmitCheck{
		Target:   s.target,
		Plan:     s.plan,
		InFlight: s.inFlight,
	})
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.checkLocked()
	snap := Snapshot{
		ID:                s.id,
		UserID:            s.userID,
		Target:            s.target,
		Plan:              clonePlan(s.plan),
		CanSubmit:         d.Allowed,
		Reason:            d.Reason,
		Submitting:        s.inFlight,
		LastLocation:      s.lastLocation,
		Retries:           s.settings.Retries,
		NeedsConfirmation: s.settings.NeedsConfirmation,
	}
	snap.Target.Selection.DeviceIDs = append([]string(nil), s.target.Selection.DeviceIDs...)
	if s.countErr != nil {
		snap.CountError = s.countErr.Error()
	}

	snap.StartTimes = make([]*time.Time, len(s.plan.Phases))
	for i := range s.plan.Phases {
		snap.StartTimes[i] = phases.ResolveStartTime(s.plan.Phases, i, s.plan.StartTime)
	}

	snap.History = s.settings.Clone().PreviousPhases
	return snap
}

// =============================================================================
// Submission
// =============================================================================

// Submit validates the plan and creates the deployment.
//
// Refusals return a *RefusalError without touching the network. When the
// user asked for confirmation and opts.Confirmed is false, Submit returns an
// Outcome with status NeedsConfirmation. A failed creation returns the
// deployment service's error unchanged and leaves all settings untouched.
// Once issued, the creation request is not cancelled by ctx.
func (s *Session) Submit(ctx context.Context, opts SubmitOptions) (*Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}

	decision := s.checkLocked()
	if !decision.Allowed {
		s.mu.Unlock()
		s.logger.Info("submission refused", "refusal", decision.Refusal, "reason", decision.Reason)
		return nil, newRefusalError(decision)
	}

	if s.settings.NeedsConfirmation && !opts.Confirmed {
		s.mu.Unlock()
		return &Outcome{Status: OutcomeNeedsConfirmation}, nil
	}

	s.inFlight = true
	plan := clonePlan(s.plan)
	target := targeting.Resolve(s.target)
	s.mu.Unlock()

	start := s.deps.Now().UTC()
	if !plan.IsImmediate() {
		start = *plan.StartTime
	}
	canRetry := s.deps.CanRetry
	if opts.CanRetry != nil {
		canRetry = *opts.CanRetry
	}
	req := deployment.BuildCreateRequest(plan, target, start, canRetry)

	detached := context.WithoutCancel(ctx)
	location, err := s.deps.Deployments.CreateDeployment(detached, req)
	if err != nil {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
		s.logger.Error("deployment creation failed", "artifact", plan.ArtifactName, "error", err)
		return nil, err
	}

	s.logger.Info("deployment created",
		"location", location,
		"artifact", plan.ArtifactName,
		"target", req.Name,
		"phases", len(req.Phases),
	)

	pattern := phases.Standardize(plan.Phases)
	updated, saveErr := s.deps.Settings.UpdateSettings(detached, s.userID, func(us *domain.UserSettings) error {
		us.PreviousPhases = phases.RecordPattern(us.PreviousPhases, pattern)
		if opts.SaveRetriesDefault {
			us.Retries = plan.Retries
		}
		if opts.NeedsConfirmation != nil {
			us.NeedsConfirmation = *opts.NeedsConfirmation
		}
		return nil
	})
	if saveErr != nil {
		s.logger.Warn("failed to save rollout settings", "error", saveErr)
	}

	s.mu.Lock()
	s.inFlight = false
	s.lastLocation = location
	if saveErr == nil {
		s.settings = updated.Clone()
	}
	s.mu.Unlock()

	return &Outcome{
		Status:        OutcomeCreated,
		Location:      location,
		Request:       &req,
		SettingsSaved: saveErr == nil,
	}, nil
}

func clonePlan(p domain.RolloutPlan) domain.RolloutPlan {
	c := p
	c.Phases = domain.ClonePhases(p.Phases)
	if p.StartTime != nil {
		t := *p.StartTime
		c.StartTime = &t
	}
	if p.UpdateControlMap != nil {
		c.UpdateControlMap = make(map[string]any, len(p.UpdateControlMap))
		for k, v := range p.UpdateControlMap {
			c.UpdateControlMap[k] = v
		}
	}
	return c
}
