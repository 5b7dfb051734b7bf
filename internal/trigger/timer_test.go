package trigger

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/banshee-data/ringcapture/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newMockTimer() (*Timer, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(epoch)
	return New(Config{Clock: clock, Logger: quietLogger()}), clock
}

// updates records countdown reports.
type updates struct {
	mu  sync.Mutex
	got []time.Duration
}

func (u *updates) add(d time.Duration) {
	u.mu.Lock()
	u.got = append(u.got, d)
	u.mu.Unlock()
}

func (u *updates) snapshot() []time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]time.Duration(nil), u.got...)
}

func TestTimerFiresOncePerInterval(t *testing.T) {
	timer, clock := newMockTimer()
	var fired atomic.Int32

	require.NoError(t, timer.Start(time.Second, func() { fired.Add(1) }, 0, nil))
	defer timer.Stop()
	assert.True(t, timer.IsRunning())

	clock.Advance(999 * time.Millisecond)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 30*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
}

func TestTimerReportsRemaining(t *testing.T) {
	timer, clock := newMockTimer()
	var u updates

	require.NoError(t, timer.Start(time.Second, func() {}, 100*time.Millisecond, u.add))
	defer timer.Stop()
	assert.Equal(t, time.Second, timer.Remaining())

	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(u.snapshot()) == 1 }, time.Second, time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(u.snapshot()) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, []time.Duration{900 * time.Millisecond, 800 * time.Millisecond}, u.snapshot())
	assert.Equal(t, 800*time.Millisecond, timer.Remaining())
}

func TestTimerStopBeforeFirstTrigger(t *testing.T) {
	timer, clock := newMockTimer()
	var fired atomic.Int32
	var u updates

	require.NoError(t, timer.Start(time.Second, func() { fired.Add(1) }, 100*time.Millisecond, u.add))
	timer.Stop()
	assert.False(t, timer.IsRunning())
	assert.Equal(t, 0, clock.ActiveTickers())

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return fired.Load() > 0 || len(u.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	select {
	case <-timer.Done():
	case <-time.After(time.Second):
		t.Fatal("timer goroutine did not exit after Stop")
	}
	assert.Zero(t, timer.Remaining())
}

func TestTimerStartWhileRunning(t *testing.T) {
	var buf bytes.Buffer
	clock := timeutil.NewMockClock(epoch)
	timer := New(Config{Clock: clock, Logger: log.New(&buf, "", 0)})
	var first, second atomic.Int32

	require.NoError(t, timer.Start(time.Second, func() { first.Add(1) }, 0, func(time.Duration) {}))
	defer timer.Stop()
	err := timer.Start(time.Second, func() { second.Add(1) }, 0, func(time.Duration) {})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, strings.Contains(buf.String(), "already running"))
	assert.Equal(t, 2, clock.ActiveTickers(), "a second Start must not add tickers")

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return first.Load() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, second.Load())
}

func TestTimerStopIsIdempotentAndRestartable(t *testing.T) {
	timer, clock := newMockTimer()
	var fired atomic.Int32

	timer.Stop()
	require.NoError(t, timer.Start(time.Second, func() { fired.Add(1) }, 0, nil))
	timer.Stop()
	timer.Stop()

	require.NoError(t, timer.Start(500*time.Millisecond, func() { fired.Add(1) }, 0, nil))
	defer timer.Stop()
	clock.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
}

func TestTimerStopFromCallback(t *testing.T) {
	timer, clock := newMockTimer()
	var fired atomic.Int32

	require.NoError(t, timer.Start(time.Second, func() {
		fired.Add(1)
		timer.Stop()
	}, 0, nil))

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !timer.IsRunning() }, time.Second, time.Millisecond)
	clock.Advance(3 * time.Second)
	assert.Never(t, func() bool { return fired.Load() > 1 }, 30*time.Millisecond, 5*time.Millisecond)
}

func TestTimerInvalidInterval(t *testing.T) {
	timer, _ := newMockTimer()
	assert.ErrorIs(t, timer.Start(0, func() {}, 0, nil), ErrInvalidInterval)
	assert.ErrorIs(t, timer.Start(-time.Second, func() {}, 0, nil), ErrInvalidInterval)
	assert.False(t, timer.IsRunning())
}

func TestTimerRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("uses wall-clock time")
	}
	timer := New(Config{Logger: quietLogger()})
	var fired atomic.Int32

	require.NoError(t, timer.Start(10*time.Millisecond, func() { fired.Add(1) }, 0, nil))
	require.Eventually(t, func() bool { return fired.Load() >= 2 }, 2*time.Second, time.Millisecond)
	timer.Stop()
	<-timer.Done()

	n := fired.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, fired.Load())
}
