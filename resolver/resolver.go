package resolver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bookline/bookline/clientcore/apperrors"
	"github.com/bookline/bookline/clientcore/authapi"
	"github.com/bookline/bookline/clientcore/models"
	"github.com/bookline/bookline/clientcore/storage"
)

// API is the slice of the auth server the resolver needs
type API interface {
	SessionCheck(ctx context.Context, t models.PrincipalType) (*models.Profile, error)
	ExternalLoginCheck(ctx context.Context, t models.PrincipalType) (*authapi.ExternalLoginResult, error)
	FetchProfile(ctx context.Context, t models.PrincipalType, id string) (*models.Profile, error)
	Logout(ctx context.Context, t models.PrincipalType) error
}

// NavigateFunc performs the hard navigation after logout so no stale
// in-memory state leaks into the next session
type NavigateFunc func(path string)

// Resolver decides "who is logged in" for one principal type. It is an
// explicit state machine: Idle, Resolving, Suspended, Resolved. The
// Suspended phase is entered on every explicit assignment and left by a
// scheduled resume event after the settle delay; while Suspended, the
// background resolution chain is skipped entirely, so a slower session
// check can never clobber a just-completed login.
type Resolver struct {
	principalType models.PrincipalType
	api           API
	store         storage.Store
	settleDelay   time.Duration
	navigate      NavigateFunc
	logger        *zap.Logger

	mu                    sync.Mutex
	phase                 models.ResolutionPhase
	principal             models.Principal
	hasCheckedOnce        bool
	externalCheckInFlight bool
	settleTimer           *time.Timer
}

// New creates a resolver for one principal type. navigate may be nil
// when the host handles navigation itself.
func New(t models.PrincipalType, api API, store storage.Store, settleDelay time.Duration,
	navigate NavigateFunc, logger *zap.Logger) *Resolver {

	return &Resolver{
		principalType: t,
		api:           api,
		store:         store,
		settleDelay:   settleDelay,
		navigate:      navigate,
		logger:        logger.With(zap.String("principal_type", string(t))),
		phase:         models.PhaseIdle,
	}
}

// CurrentPrincipal returns the resolved principal. Unauthenticated until
// a source yields a profile.
func (r *Resolver) CurrentPrincipal() models.Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.principal
}

// IsLoading reports whether resolution is in flight
func (r *Resolver) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == models.PhaseResolving
}

// ExternalCheckInFlight reports whether the third-party-login check has
// started but not settled. The guard must not redirect while this is
// true.
func (r *Resolver) ExternalCheckInFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.externalCheckInFlight
}

// State returns the externally visible resolution state
func (r *Resolver) State() models.ResolutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.ResolutionState{
		Phase:          r.phase,
		Loading:        r.phase == models.PhaseResolving,
		HasCheckedOnce: r.hasCheckedOnce,
	}
}

// Assign publishes a profile. It is the single path by which resolution
// steps and direct in-app logins install a principal. A profile lacking
// an identifier is logged and discarded, never assigned. Assignment
// suspends background resolution for the settle delay.
func (r *Resolver) Assign(profile *models.Profile) error {
	if !profile.HasIdentifier() {
		r.logger.Warn("discarding profile without identifier")
		return apperrors.ErrProfileMalformed
	}

	r.mu.Lock()
	r.principal = models.NewPrincipal(r.principalType, profile)
	r.phase = models.PhaseSuspended
	r.hasCheckedOnce = true
	if r.settleTimer != nil {
		r.settleTimer.Stop()
	}
	r.settleTimer = time.AfterFunc(r.settleDelay, r.resume)
	r.mu.Unlock()

	// An explicit login lifts the post-logout suppression of
	// external-login checks.
	if err := r.store.Delete(storage.KeyExternalLoginSuppressed); err != nil {
		r.logger.Warn("failed to clear external-login suppression", zap.Error(err))
	}

	if err := r.writeSnapshot(profile); err != nil {
		r.logger.Warn("failed to persist snapshot", zap.Error(err))
	}

	r.logger.Info("principal assigned", zap.String("profile_id", profile.ID))
	return nil
}

// resume is the scheduled transition out of Suspended: the settle window
// is over and background resolution may overwrite again.
func (r *Resolver) resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == models.PhaseSuspended {
		r.phase = models.PhaseResolved
	}
}

// Resolve runs the resolution chain in strict order, short-circuiting at
// the first source that yields a profile:
//
//  1. skip entirely while Suspended (a login just completed)
//  2. the third-party-login check
//  3. the same-origin session check
//  4. the persisted snapshot, re-validated against the server
//  5. resolved to Unauthenticated
//
// Failures inside the chain degrade to the next source; only total
// exhaustion resolves to Unauthenticated.
func (r *Resolver) Resolve(ctx context.Context) error {
	r.mu.Lock()
	if r.phase == models.PhaseSuspended || r.phase == models.PhaseResolving {
		r.mu.Unlock()
		return nil
	}
	r.phase = models.PhaseResolving
	r.mu.Unlock()

	// Step 2: external login check.
	found, err := r.CheckExternalLogin(ctx)
	if err != nil {
		r.logger.Debug("external login check failed, degrading", zap.Error(err))
	}
	if found {
		return nil
	}
	if r.suspendedMidResolve() {
		return nil
	}

	// Step 3: same-origin session check.
	profile, err := r.api.SessionCheck(ctx, r.principalType)
	if err != nil {
		r.logger.Debug("session check failed, degrading", zap.Error(err))
	}
	if profile.HasIdentifier() {
		return r.Assign(profile)
	}
	if r.suspendedMidResolve() {
		return nil
	}

	// Step 4: persisted snapshot, re-validated by identifier.
	if snap := r.readSnapshot(); snap != nil {
		fresh, err := r.api.FetchProfile(ctx, r.principalType, snap.Profile.ID)
		if err == nil && fresh.HasIdentifier() {
			return r.Assign(fresh)
		}
		// A transient failure must not look identical to "never logged
		// in": fall back to the raw snapshot values.
		r.logger.Warn("snapshot re-validation failed, using raw snapshot",
			zap.String("profile_id", snap.Profile.ID), zap.Error(err))
		return r.Assign(&snap.Profile)
	}

	// Step 5: every source is empty. An assignment that landed in the
	// meantime wins; only an undisturbed chain resolves to
	// Unauthenticated.
	r.mu.Lock()
	if r.phase == models.PhaseResolving {
		r.phase = models.PhaseResolved
		r.principal = models.Unauthenticated
	}
	r.hasCheckedOnce = true
	r.mu.Unlock()
	r.logger.Debug("resolved to unauthenticated")
	return nil
}

// CheckExternalLogin asks the server whether a third-party-login-derived
// session already exists and assigns its profile if so. Returns whether
// a profile was found. Checks are suppressed immediately after an
// explicit logout.
func (r *Resolver) CheckExternalLogin(ctx context.Context) (bool, error) {
	r.mu.Lock()
	r.externalCheckInFlight = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.externalCheckInFlight = false
		r.mu.Unlock()
	}()

	if _, suppressed, _ := r.store.Get(storage.KeyExternalLoginSuppressed); suppressed {
		r.logger.Debug("external login check suppressed after logout")
		return false, nil
	}

	result, err := r.api.ExternalLoginCheck(ctx, r.principalType)
	if err != nil {
		return false, err
	}
	if !result.Success || !result.Authenticated || result.User == nil {
		return false, nil
	}
	if result.UserType != "" && result.UserType != string(r.principalType) {
		r.logger.Debug("external login belongs to the other principal type",
			zap.String("user_type", result.UserType))
		return false, nil
	}
	if err := r.Assign(result.User); err != nil {
		return false, err
	}
	return true, nil
}

// Logout best-effort notifies the server, then unconditionally tears
// down local state: the user-visible outcome must not depend on server
// reachability. Safe to call repeatedly.
func (r *Resolver) Logout(ctx context.Context) error {
	if err := r.api.Logout(ctx, r.principalType); err != nil {
		// Swallowed after teardown; the server-side session is cleaned
		// up opportunistically at the next reachable moment.
		r.logger.Warn("server logout failed, tearing down locally anyway", zap.Error(err))
	}

	r.mu.Lock()
	r.principal = models.Unauthenticated
	r.phase = models.PhaseResolved
	r.hasCheckedOnce = true
	if r.settleTimer != nil {
		r.settleTimer.Stop()
		r.settleTimer = nil
	}
	r.mu.Unlock()

	if err := r.store.Delete(storage.SnapshotKey(r.principalType)); err != nil {
		r.logger.Warn("failed to erase snapshot", zap.Error(err))
	}
	if err := r.store.Set(storage.KeyExternalLoginSuppressed, "true"); err != nil {
		r.logger.Warn("failed to set external-login suppression", zap.Error(err))
	}

	r.logger.Info("logged out")
	if r.navigate != nil {
		r.navigate(r.principalType.EntryPath())
	}
	return nil
}

// suspendedMidResolve detects an explicit assignment that landed between
// resolution steps; the chain must stop rather than overwrite it.
func (r *Resolver) suspendedMidResolve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == models.PhaseSuspended
}

func (r *Resolver) writeSnapshot(profile *models.Profile) error {
	snap := models.Snapshot{Type: r.principalType, Profile: *profile}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.store.Set(storage.SnapshotKey(r.principalType), string(raw))
}

func (r *Resolver) readSnapshot() *models.Snapshot {
	raw, ok, err := r.store.Get(storage.SnapshotKey(r.principalType))
	if err != nil || !ok {
		return nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		r.logger.Warn("discarding unreadable snapshot", zap.Error(err))
		return nil
	}
	if !snap.Profile.HasIdentifier() {
		return nil
	}
	return &snap
}
