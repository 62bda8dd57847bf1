package activity

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bookline/bookline/clientcore/storage"
)

func TestTimer_RemainingBeforeStart(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	timer := NewTimer(store, 15*time.Minute, 2*time.Minute, nil, nil,
		zaptest.NewLogger(t), WithClock(clock))

	// No persisted timestamp yet
	assert.Equal(t, 15*time.Minute, timer.Remaining())
	assert.Equal(t, 15, timer.RemainingMinutes())
	assert.False(t, timer.IsExpired())

	// Thirteen minutes of recorded inactivity
	require.NoError(t, store.Set(storage.KeyLastActivity,
		now.Add(-13*time.Minute).Format(time.RFC3339)))
	assert.Equal(t, 2*time.Minute, timer.Remaining())
	assert.False(t, timer.IsExpired())

	// Past the window
	require.NoError(t, store.Set(storage.KeyLastActivity,
		now.Add(-16*time.Minute).Format(time.RFC3339)))
	assert.Equal(t, time.Duration(0), timer.Remaining())
	assert.True(t, timer.IsExpired())
}

func TestTimer_StartFiresExpiryImmediatelyWhenElapsed(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(storage.KeyLastActivity,
		now.Add(-20*time.Minute).Format(time.RFC3339)))

	var expired atomic.Bool
	timer := NewTimer(store, 15*time.Minute, 2*time.Minute,
		nil, func() { expired.Store(true) },
		zaptest.NewLogger(t), WithClock(func() time.Time { return now }))

	require.NoError(t, timer.Start())
	assert.True(t, expired.Load(), "expiry must fire synchronously at Start")
}

func TestTimer_WarningThenExpiry(t *testing.T) {
	store := storage.NewMemoryStore()
	var warned, expired atomic.Bool

	timer := NewTimer(store, 120*time.Millisecond, 60*time.Millisecond,
		func(time.Duration) { warned.Store(true) },
		func() { expired.Store(true) },
		zaptest.NewLogger(t))
	defer timer.Stop()

	require.NoError(t, timer.Start())

	time.Sleep(80 * time.Millisecond)
	assert.True(t, warned.Load(), "warning fires at timeout - lead")
	assert.False(t, expired.Load(), "expiry not yet due")

	time.Sleep(80 * time.Millisecond)
	assert.True(t, expired.Load(), "expiry fires at timeout")
}

func TestTimer_ResetPushesCallbacksBack(t *testing.T) {
	store := storage.NewMemoryStore()
	var warned atomic.Bool

	timer := NewTimer(store, 150*time.Millisecond, 50*time.Millisecond,
		func(time.Duration) { warned.Store(true) }, nil,
		zaptest.NewLogger(t))
	defer timer.Stop()

	require.NoError(t, timer.Start())

	// Keep interacting before the warning point; only one timer pair is
	// ever live, so the warning never fires.
	for i := 0; i < 4; i++ {
		time.Sleep(60 * time.Millisecond)
		require.NoError(t, timer.Touch(SignalClick))
	}
	assert.False(t, warned.Load())
}

func TestTimer_StopCancelsCallbacks(t *testing.T) {
	store := storage.NewMemoryStore()
	var fired atomic.Bool

	timer := NewTimer(store, 60*time.Millisecond, 20*time.Millisecond,
		func(time.Duration) { fired.Store(true) },
		func() { fired.Store(true) },
		zaptest.NewLogger(t))

	require.NoError(t, timer.Start())
	timer.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestTimer_ResetBeforeStartOnlyPersists(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	timer := NewTimer(store, 15*time.Minute, 2*time.Minute, nil, nil,
		zaptest.NewLogger(t), WithClock(func() time.Time { return now }))

	require.NoError(t, timer.Reset())

	raw, ok, err := store.Get(storage.KeyLastActivity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.Format(time.RFC3339), raw)
}
