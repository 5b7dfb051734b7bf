// Package trigger provides the periodic scheduler behind automatic capture.
package trigger

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/ringcapture/internal/timeutil"
)

// DefaultUpdateEvery is the countdown cadence used when none is given (30 Hz).
const DefaultUpdateEvery = time.Second / 30

var (
	// ErrAlreadyRunning is returned by Start on a running timer. It is benign:
	// the running schedule is left untouched.
	ErrAlreadyRunning = errors.New("capture timer already running")
	// ErrInvalidInterval is returned for a non-positive trigger interval.
	ErrInvalidInterval = errors.New("capture interval must be positive")
)

// Config configures a Timer. Both fields are optional.
type Config struct {
	// Clock drives the tickers; defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Timer runs two independent cadences: a trigger cadence that calls
// onTrigger once per interval, and a faster update cadence that reports the
// time remaining until the next trigger.
//
// Stop cancels both cadences at once. It takes effect for every tick that
// has not started yet but does not interrupt a callback already running,
// and it never waits for one, so callbacks may call Stop themselves.
// Callbacks run on the timer's goroutine and must not block.
type Timer struct {
	clock  timeutil.Clock
	logger *log.Logger

	mu       sync.Mutex
	running  bool
	gen      uint64
	stopCh   chan struct{}
	doneCh   chan struct{}
	tickers  []timeutil.Ticker
	next     time.Time
	interval time.Duration
}

// New creates a stopped Timer.
func New(cfg Config) *Timer {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Timer{clock: clock, logger: logger}
}

// Start schedules onTrigger every triggerEvery and onUpdate every
// updateEvery (DefaultUpdateEvery if zero). onUpdate may be nil. Starting a
// running timer logs and returns ErrAlreadyRunning without rescheduling.
func (t *Timer) Start(triggerEvery time.Duration, onTrigger func(), updateEvery time.Duration, onUpdate func(remaining time.Duration)) error {
	if triggerEvery <= 0 {
		return ErrInvalidInterval
	}
	if updateEvery <= 0 {
		updateEvery = DefaultUpdateEvery
	}
	if onTrigger == nil {
		onTrigger = func() {}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.logger.Printf("CaptureTimer: already running, not starting again")
		return ErrAlreadyRunning
	}

	t.running = true
	t.gen++
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.interval = triggerEvery
	t.next = t.clock.Now().Add(triggerEvery)

	trig := t.clock.NewTicker(triggerEvery)
	t.tickers = []timeutil.Ticker{trig}
	var updates <-chan time.Time
	if onUpdate != nil {
		upd := t.clock.NewTicker(updateEvery)
		t.tickers = append(t.tickers, upd)
		updates = upd.C()
	}

	t.logger.Printf("CaptureTimer started: trigger=%v update=%v", triggerEvery, updateEvery)
	go t.loop(t.gen, t.stopCh, t.doneCh, trig.C(), updates, onTrigger, onUpdate)
	return nil
}

func (t *Timer) loop(gen uint64, stopCh <-chan struct{}, doneCh chan<- struct{}, triggers, updates <-chan time.Time, onTrigger func(), onUpdate func(time.Duration)) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case now := <-triggers:
			if !t.advance(gen, now) {
				return
			}
			onTrigger()
		case now := <-updates:
			remaining, ok := t.remainingAt(gen, now)
			if !ok {
				return
			}
			onUpdate(remaining)
		}
	}
}

// advance moves the next-trigger deadline after a trigger tick. It reports
// false once the generation has been stopped or replaced.
func (t *Timer) advance(gen uint64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.gen != gen {
		return false
	}
	t.next = now.Add(t.interval)
	return true
}

func (t *Timer) remainingAt(gen uint64, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.gen != gen {
		return 0, false
	}
	d := t.next.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Stop cancels both cadences. It is safe to call multiple times and from
// inside a callback.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	for _, tk := range t.tickers {
		tk.Stop()
	}
	t.tickers = nil
	close(t.stopCh)
	t.logger.Printf("CaptureTimer stopped")
}

// Done returns a channel closed when the goroutine of the most recent Start
// has exited. It is nil before the first Start.
func (t *Timer) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneCh
}

// IsRunning reports whether the timer is scheduled.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Remaining returns the time until the next trigger, or zero when stopped.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	d := t.next.Sub(t.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}
