package guard

import (
	"net/url"

	"go.uber.org/zap"

	"github.com/bookline/bookline/clientcore/models"
)

// DecisionKind classifies what the host should do with a protected view
type DecisionKind string

const (
	// DecisionWait means resolution has not settled; render nothing and
	// do not redirect yet.
	DecisionWait DecisionKind = "wait"
	// DecisionRender means the required principal is authenticated.
	DecisionRender DecisionKind = "render"
	// DecisionRedirect means the user must be sent to the entry page.
	DecisionRedirect DecisionKind = "redirect"
)

// Decision is the guard's verdict for a protected view
type Decision struct {
	Kind DecisionKind
	// RedirectTo carries the entry page with the originating path
	// attached, so the entry page can return the user afterward.
	RedirectTo string
}

// PrincipalSource is the slice of a resolver the guard consumes
type PrincipalSource interface {
	CurrentPrincipal() models.Principal
	State() models.ResolutionState
	ExternalCheckInFlight() bool
}

// Guard gates protected views on the combined state of both principal
// resolvers. It never renders protected content and never redirects
// until both resolvers have finished loading and any in-flight
// third-party-login check has completed; this ordering avoids a flash
// of "redirect to login" for a user whose external-login check simply
// has not resolved yet.
type Guard struct {
	consumer PrincipalSource
	provider PrincipalSource
	logger   *zap.Logger
}

// New creates a Guard over the two principal resolvers
func New(consumer, provider PrincipalSource, logger *zap.Logger) *Guard {
	return &Guard{
		consumer: consumer,
		provider: provider,
		logger:   logger,
	}
}

// Decide returns the verdict for a view requiring the given principal
// type. fromPath is the originating path, attached to the redirect
// target.
func (g *Guard) Decide(required models.PrincipalType, fromPath string) Decision {
	if !g.settled() {
		return Decision{Kind: DecisionWait}
	}

	source := g.consumer
	if required == models.PrincipalProvider {
		source = g.provider
	}

	if source.CurrentPrincipal().IsAuthenticated() {
		return Decision{Kind: DecisionRender}
	}

	target := required.EntryPath()
	if fromPath != "" {
		target += "?from=" + url.QueryEscape(fromPath)
	}
	g.logger.Debug("redirecting unauthenticated user",
		zap.String("required", string(required)),
		zap.String("target", target))
	return Decision{Kind: DecisionRedirect, RedirectTo: target}
}

// settled reports whether both resolvers have checked once, neither is
// mid-resolution, and no external-login check is in flight
func (g *Guard) settled() bool {
	for _, src := range []PrincipalSource{g.consumer, g.provider} {
		state := src.State()
		if !state.HasCheckedOnce || state.Loading || src.ExternalCheckInFlight() {
			return false
		}
	}
	return true
}
