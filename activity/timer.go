package activity

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bookline/bookline/clientcore/storage"
)

// Signal represents one of the fixed interaction kinds that reset the
// inactivity clock. The host application forwards these from its UI
// layer.
type Signal string

const (
	SignalPointerPress Signal = "pointer_press"
	SignalPointerMove  Signal = "pointer_move"
	SignalKeyPress     Signal = "key_press"
	SignalScroll       Signal = "scroll"
	SignalTouchStart   Signal = "touch_start"
	SignalClick        Signal = "click"
)

// Signals is the full set of interaction kinds the timer listens for
var Signals = []Signal{
	SignalPointerPress,
	SignalPointerMove,
	SignalKeyPress,
	SignalScroll,
	SignalTouchStart,
	SignalClick,
}

// Timer tracks the last user interaction and schedules a warning and an
// expiry callback. At most one (warning, expiry) pair is live; Reset
// cancels the pending pair before rescheduling. The last-activity
// timestamp is persisted so a process restart does not reset the clock.
type Timer struct {
	store       storage.Store
	timeout     time.Duration
	warningLead time.Duration
	onWarning   func(remaining time.Duration)
	onExpiry    func()
	logger      *zap.Logger
	clock       func() time.Time

	mu          sync.Mutex
	warnTimer   *time.Timer
	expireTimer *time.Timer
	started     bool
}

// Option configures a Timer
type Option func(*Timer)

// WithClock injects a time source for tests
func WithClock(clock func() time.Time) Option {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a Timer. onWarning fires at timeout-warningLead with
// the remaining duration; onExpiry fires at timeout. Neither is invoked
// until Start.
func NewTimer(store storage.Store, timeout, warningLead time.Duration,
	onWarning func(remaining time.Duration), onExpiry func(),
	logger *zap.Logger, opts ...Option) *Timer {

	t := &Timer{
		store:       store,
		timeout:     timeout,
		warningLead: warningLead,
		onWarning:   onWarning,
		onExpiry:    onExpiry,
		logger:      logger,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Touch records an interaction signal and resets the clock
func (t *Timer) Touch(sig Signal) error {
	t.logger.Debug("activity signal", zap.String("signal", string(sig)))
	return t.Reset()
}

// Start begins tracking from the persisted timestamp. If the timeout
// window already elapsed while the process was down, the expiry callback
// fires immediately instead of being scheduled.
func (t *Timer) Start() error {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()

	last, ok, err := t.lastActivity()
	if err != nil {
		return err
	}
	if !ok {
		// First run: the clock starts now.
		return t.Reset()
	}

	remaining := t.timeout - t.clock().Sub(last)
	if remaining <= 0 {
		t.logger.Info("session already expired at start",
			zap.Time("last_activity", last))
		t.fireExpiry()
		return nil
	}
	t.schedule(remaining)
	return nil
}

// Reset writes now to the persisted timestamp and reschedules the
// warning/expiry pair
func (t *Timer) Reset() error {
	now := t.clock()
	if err := t.store.Set(storage.KeyLastActivity, now.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("persist activity timestamp: %w", err)
	}

	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.schedule(t.timeout)
	return nil
}

// Stop cancels any pending callbacks
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	t.cancelLocked()
}

// Remaining returns the time left before expiry, computed purely from
// the persisted timestamp. Usable before Start.
func (t *Timer) Remaining() time.Duration {
	last, ok, err := t.lastActivity()
	if err != nil || !ok {
		return t.timeout
	}
	remaining := t.timeout - t.clock().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingMinutes returns Remaining rounded down to whole minutes
func (t *Timer) RemainingMinutes() int {
	return int(t.Remaining() / time.Minute)
}

// IsExpired reports whether the inactivity window has elapsed. Usable
// before Start, e.g. to gate an initial render decision.
func (t *Timer) IsExpired() bool {
	last, ok, err := t.lastActivity()
	if err != nil || !ok {
		return false
	}
	return t.clock().Sub(last) >= t.timeout
}

// schedule replaces the live timer pair. A warning point already in the
// past (process reopened inside the warning window) fires synchronously.
func (t *Timer) schedule(remaining time.Duration) {
	t.mu.Lock()
	t.cancelLocked()

	warnIn := remaining - t.warningLead
	if warnIn > 0 {
		t.warnTimer = time.AfterFunc(warnIn, t.fireWarning)
	}
	t.expireTimer = time.AfterFunc(remaining, t.fireExpiry)
	t.mu.Unlock()

	if warnIn <= 0 {
		t.fireWarning()
	}
}

func (t *Timer) cancelLocked() {
	if t.warnTimer != nil {
		t.warnTimer.Stop()
		t.warnTimer = nil
	}
	if t.expireTimer != nil {
		t.expireTimer.Stop()
		t.expireTimer = nil
	}
}

func (t *Timer) fireWarning() {
	remaining := t.Remaining()
	t.logger.Info("session expiry warning", zap.Duration("remaining", remaining))
	if t.onWarning != nil {
		t.onWarning(remaining)
	}
}

func (t *Timer) fireExpiry() {
	t.mu.Lock()
	t.cancelLocked()
	t.mu.Unlock()

	t.logger.Info("session expired from inactivity")
	if t.onExpiry != nil {
		t.onExpiry()
	}
}

func (t *Timer) lastActivity() (time.Time, bool, error) {
	raw, ok, err := t.store.Get(storage.KeyLastActivity)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read activity timestamp: %w", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Unreadable timestamp: treat as never recorded.
		t.logger.Warn("discarding unreadable activity timestamp", zap.String("value", raw))
		return time.Time{}, false, nil
	}
	return last, true, nil
}
