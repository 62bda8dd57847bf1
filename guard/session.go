package guard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bookline/bookline/clientcore/activity"
	"github.com/bookline/bookline/clientcore/storage"
)

// Expirer tears a session down; the resolver satisfies it
type Expirer interface {
	Logout(ctx context.Context) error
}

// PromptFunc surfaces the expiry warning to the user with a live
// countdown and the two explicit choices. extend resets the inactivity
// clock; logout tears the session down on the same path that automatic
// expiry uses.
type PromptFunc func(remaining time.Duration, extend func() error, logout func() error)

// SessionWatch combines the activity timer with the logout path: the
// warning callback raises the prompt, and reaching zero auto-invokes
// the same logout as the manual choice.
type SessionWatch struct {
	timer   *activity.Timer
	expirer Expirer
	prompt  PromptFunc
	logger  *zap.Logger
}

// NewSessionWatch wires a watch over the given store and timing
func NewSessionWatch(store storage.Store, timeout, warningLead time.Duration,
	expirer Expirer, prompt PromptFunc, logger *zap.Logger) *SessionWatch {

	w := &SessionWatch{
		expirer: expirer,
		prompt:  prompt,
		logger:  logger,
	}
	w.timer = activity.NewTimer(store, timeout, warningLead, w.onWarning, w.onExpiry, logger)
	return w
}

// Start begins inactivity tracking; call once the first principal
// resolution has settled
func (w *SessionWatch) Start() error {
	return w.timer.Start()
}

// Stop cancels tracking, e.g. after logout
func (w *SessionWatch) Stop() {
	w.timer.Stop()
}

// Touch forwards an interaction signal to the timer
func (w *SessionWatch) Touch(sig activity.Signal) error {
	return w.timer.Touch(sig)
}

// Remaining returns the time left before expiry
func (w *SessionWatch) Remaining() time.Duration {
	return w.timer.Remaining()
}

// IsExpired reports whether the inactivity window has already elapsed,
// usable before Start to gate an initial render decision
func (w *SessionWatch) IsExpired() bool {
	return w.timer.IsExpired()
}

func (w *SessionWatch) onWarning(remaining time.Duration) {
	if w.prompt == nil {
		return
	}
	w.prompt(remaining, w.extend, w.logout)
}

func (w *SessionWatch) onExpiry() {
	w.logger.Info("inactivity timeout reached, logging out")
	_ = w.logout()
}

func (w *SessionWatch) extend() error {
	w.logger.Debug("session extended from warning prompt")
	return w.timer.Reset()
}

func (w *SessionWatch) logout() error {
	w.timer.Stop()
	return w.expirer.Logout(context.Background())
}
