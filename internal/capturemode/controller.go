// Package capturemode switches capture between manual shots and a periodic
// automatic trigger.
package capturemode

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ringcapture/internal/timeutil"
	"github.com/banshee-data/ringcapture/internal/trigger"
)

// Kind names a capture mode.
type Kind string

const (
	KindManual    Kind = "manual"
	KindAutomatic Kind = "automatic"
)

// Mode is a capture mode. Interval is only meaningful for KindAutomatic.
type Mode struct {
	Kind     Kind          `json:"kind"`
	Interval time.Duration `json:"interval"`
}

// Manual returns the manual mode.
func Manual() Mode { return Mode{Kind: KindManual} }

// Automatic returns an automatic mode firing every interval.
func Automatic(interval time.Duration) Mode {
	return Mode{Kind: KindAutomatic, Interval: interval}
}

func (m Mode) String() string {
	if m.Kind == KindAutomatic {
		return fmt.Sprintf("automatic(%v)", m.Interval)
	}
	return string(m.Kind)
}

// Validate checks the kind and, for automatic mode, the interval.
func (m Mode) Validate() error {
	switch m.Kind {
	case KindManual:
		return nil
	case KindAutomatic:
		if m.Interval <= 0 {
			return fmt.Errorf("automatic mode: %w", trigger.ErrInvalidInterval)
		}
		return nil
	default:
		return fmt.Errorf("unknown capture mode %q", m.Kind)
	}
}

// ToggleResult describes what Toggle did.
type ToggleResult string

const (
	ToggleCaptured ToggleResult = "captured"
	ToggleStarted  ToggleResult = "started"
	ToggleStopped  ToggleResult = "stopped"
)

// Config wires a Controller to the rest of the session.
type Config struct {
	Clock  timeutil.Clock
	Logger *log.Logger
	// UpdateEvery is the countdown cadence; defaults to trigger.DefaultUpdateEvery.
	UpdateEvery time.Duration
	// Capture requests one capture. It must not block. Errors from
	// automatic triggers are dropped; the callee reports them.
	Capture func() error
	// OnCountdown, if set, receives the time until the next automatic capture.
	OnCountdown func(remaining time.Duration)
}

// Controller owns the current mode and, in automatic mode, exactly one
// trigger timer. Every mode change stops and discards the old timer before
// a new one is created.
type Controller struct {
	cfg Config

	mu    sync.Mutex
	mode  Mode
	timer *trigger.Timer

	remaining atomic.Int64
}

// New creates a Controller in manual mode.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.UpdateEvery <= 0 {
		cfg.UpdateEvery = trigger.DefaultUpdateEvery
	}
	if cfg.Capture == nil {
		cfg.Capture = func() error { return nil }
	}
	return &Controller{cfg: cfg, mode: Manual()}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches modes. Entering automatic mode starts capturing
// immediately; leaving it stops the timer.
func (c *Controller) SetMode(m Mode) error {
	if err := m.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardTimerLocked()
	c.mode = m
	if m.Kind != KindAutomatic {
		return nil
	}
	c.timer = trigger.New(trigger.Config{Clock: c.cfg.Clock, Logger: c.cfg.Logger})
	return c.startLocked()
}

// Toggle is the capture button: a single capture in manual mode, start or
// stop of the timer in automatic mode.
func (c *Controller) Toggle() (ToggleResult, error) {
	c.mu.Lock()
	if c.mode.Kind != KindAutomatic {
		c.mu.Unlock()
		if err := c.cfg.Capture(); err != nil {
			return "", err
		}
		return ToggleCaptured, nil
	}
	defer c.mu.Unlock()

	if c.timer == nil {
		c.timer = trigger.New(trigger.Config{Clock: c.cfg.Clock, Logger: c.cfg.Logger})
	}
	if c.timer.IsRunning() {
		c.timer.Stop()
		c.remaining.Store(0)
		return ToggleStopped, nil
	}
	if err := c.startLocked(); err != nil {
		return "", err
	}
	return ToggleStarted, nil
}

// Stop halts automatic capture without changing the mode.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.remaining.Store(0)
}

// AutoCaptureActive reports whether the automatic timer is running.
func (c *Controller) AutoCaptureActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil && c.timer.IsRunning()
}

// TimeUntilCapture is the most recent countdown report, zero when idle.
func (c *Controller) TimeUntilCapture() time.Duration {
	return time.Duration(c.remaining.Load())
}

func (c *Controller) startLocked() error {
	c.remaining.Store(int64(c.mode.Interval))
	t := c.timer
	return t.Start(c.mode.Interval, c.fire, c.cfg.UpdateEvery, func(remaining time.Duration) {
		c.countdown(t, remaining)
	})
}

func (c *Controller) discardTimerLocked() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer = nil
	c.remaining.Store(0)
}

func (c *Controller) fire() {
	_ = c.cfg.Capture()
}

// countdown drops reports from a timer that has since been discarded.
func (c *Controller) countdown(t *trigger.Timer, remaining time.Duration) {
	c.mu.Lock()
	current := c.timer == t
	if current {
		c.remaining.Store(int64(remaining))
	}
	c.mu.Unlock()
	if !current {
		return
	}
	if c.cfg.OnCountdown != nil {
		c.cfg.OnCountdown(remaining)
	}
}
