// Package capture orchestrates a capture session: it turns camera poses into
// guidance, keeps checkpoint statuses current and runs captures through a
// Sink while respecting the in-flight limit.
package capture

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/ringcapture/internal/capturemode"
	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/guidance"
	"github.com/banshee-data/ringcapture/internal/monitoring"
	"github.com/banshee-data/ringcapture/internal/timeutil"
	"github.com/google/uuid"
)

var (
	// ErrNoCheckpoint is returned when a capture is requested while the
	// camera is not aimed at any checkpoint.
	ErrNoCheckpoint = errors.New("camera is not at a checkpoint")
	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("capture session closed")
)

// Config configures a Session. Layout and Sink are required.
type Config struct {
	Layout      *checkpoint.Layout
	Thresholds  guidance.Thresholds
	Sink        Sink
	Recorder    Recorder // optional
	MaxInFlight int      // defaults to 2
	UpdateEvery time.Duration
	Clock       timeutil.Clock
	Logger      *log.Logger
}

// Session is a single capture session.
type Session struct {
	store    *checkpoint.Store
	resolver *guidance.Resolver
	registry *Registry
	mode     *capturemode.Controller
	sink     Sink
	recorder Recorder
	clock    timeutil.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	last     guidance.Resolution
	lastPose geom.CameraPose
	closed   bool

	subMu       sync.Mutex
	subscribers map[string]chan Event

	// Journal writes run on one worker, off the pose path and timer callbacks.
	journalMu     sync.Mutex
	journal       chan Record
	journalClosed bool
	journalDone   chan struct{}
}

// NewSession builds the store for cfg.Layout and starts in manual mode.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Layout == nil || cfg.Layout.Len() == 0 {
		return nil, checkpoint.ErrInvalidConfiguration
	}
	if cfg.Sink == nil {
		return nil, errors.New("capture session requires a sink")
	}
	if cfg.Thresholds == (guidance.Thresholds{}) {
		cfg.Thresholds = guidance.DefaultThresholds()
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 2
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	store := checkpoint.NewStore(cfg.Layout)
	store.MarkReady()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:       store,
		resolver:    guidance.NewResolver(store, cfg.Thresholds),
		registry:    NewRegistry(cfg.MaxInFlight),
		sink:        cfg.Sink,
		recorder:    cfg.Recorder,
		clock:       cfg.Clock,
		ctx:         ctx,
		cancel:      cancel,
		last:        guidance.Resolution{Index: -1, Error: guidance.ErrorNone},
		subscribers: make(map[string]chan Event),
		journal:     make(chan Record, journalBuffer),
		journalDone: make(chan struct{}),
	}
	go s.writeJournal()
	s.mode = capturemode.New(capturemode.Config{
		Clock:       cfg.Clock,
		Logger:      cfg.Logger,
		UpdateEvery: cfg.UpdateEvery,
		Capture:     s.autoCapture,
		OnCountdown: s.countdown,
	})
	monitoring.Logf("Session: %d checkpoints on %d rings ready", cfg.Layout.Len(), len(cfg.Layout.Rings))
	return s, nil
}

// Layout returns the checkpoint layout.
func (s *Session) Layout() *checkpoint.Layout { return s.store.Layout() }

// HandlePose resolves a camera pose, updates pointed markers and publishes
// the guidance. It never blocks on captures.
func (s *Session) HandlePose(pose geom.CameraPose) guidance.Resolution {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return guidance.Resolution{Index: -1, Error: guidance.ErrorNone}
	}
	s.mu.Unlock()

	res := s.resolver.Resolve(pose)
	changed := s.store.ApplyResolution(res.Index, res.Matched())

	s.mu.Lock()
	s.last = res
	s.lastPose = pose
	s.mu.Unlock()

	if !res.Matched() && res.Error != guidance.ErrorNone {
		monitoring.Debugf("Session: no checkpoint: %s (candidate=%d distance=%.3f elevation=%.1f alignment=%.1f)",
			res.Error, res.Candidate, res.DistanceM, res.ElevationDeg, res.AlignmentDeg)
	}

	s.publish(Event{Kind: EventGuidance, Resolution: &res, Hint: res.Error.Hint()})
	if changed {
		s.publish(Event{Kind: EventStatus, Statuses: s.store.Snapshot()})
	}
	return res
}

// Resolution returns the most recent resolution.
func (s *Session) Resolution() guidance.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// CanCapture reports whether Capture would currently start a capture.
func (s *Session) CanCapture() bool {
	s.mu.Lock()
	ok := !s.closed && s.last.Matched()
	s.mu.Unlock()
	return ok && s.registry.CanCapture()
}

// Capture starts a capture at the checkpoint the camera is aimed at. The
// sink runs asynchronously; the checkpoint is marked captured once it
// succeeds.
func (s *Session) Capture() (Request, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Request{}, ErrClosed
	}
	res := s.last
	if !res.Matched() {
		s.mu.Unlock()
		s.record(Record{Index: res.Candidate, Ring: res.Ring, Outcome: OutcomeRejected, Error: ErrNoCheckpoint.Error(), RequestedAt: now, CompletedAt: now})
		return Request{}, ErrNoCheckpoint
	}
	req, err := s.registry.Begin(Request{
		Index:       res.Index,
		Ring:        res.Ring,
		Pose:        s.lastPose,
		Resolution:  res,
		RequestedAt: now,
	})
	if err != nil {
		s.mu.Unlock()
		s.record(Record{Index: res.Index, Ring: res.Ring, Outcome: OutcomeRejected, Error: err.Error(), RequestedAt: now, CompletedAt: now})
		return Request{}, err
	}
	// Added under mu so Close cannot be waiting already.
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(req)
	s.publish(Event{Kind: EventCaptureStarted, Request: &req})
	return req, nil
}

func (s *Session) run(req Request) {
	defer s.wg.Done()

	err := s.sink.Capture(s.ctx, req)
	s.registry.Complete(req.ID)

	rec := Record{
		RequestID:   req.ID,
		Index:       req.Index,
		Ring:        req.Ring,
		Outcome:     OutcomeOK,
		RequestedAt: req.RequestedAt,
		CompletedAt: s.clock.Now(),
	}
	ev := Event{Kind: EventCaptureFinished, Request: &req}
	if err != nil {
		monitoring.Logf("Session: capture %d at checkpoint %d failed: %v", req.ID, req.Index, err)
		rec.Outcome = OutcomeFailed
		rec.Error = err.Error()
		ev.Error = err.Error()
	}
	s.record(rec)
	s.publish(ev)
	if err != nil {
		return
	}

	if _, serr := s.store.SetStatus(req.Index, checkpoint.StatusCaptured); serr != nil {
		monitoring.Logf("Session: marking checkpoint %d captured: %v", req.Index, serr)
		return
	}
	s.publish(Event{Kind: EventStatus, Statuses: s.store.Snapshot()})
	if p := s.Progress(); p.Complete {
		monitoring.Logf("Session: all %d checkpoints captured", p.Total)
		s.publish(Event{Kind: EventComplete, Progress: &p})
	}
}

// record queues rec for the journal. It never blocks: when the backlog is
// full the record is dropped and logged.
func (s *Session) record(rec Record) {
	if s.recorder == nil {
		return
	}
	rec.Mode = s.mode.Mode().Kind

	s.journalMu.Lock()
	defer s.journalMu.Unlock()
	if s.journalClosed {
		return
	}
	select {
	case s.journal <- rec:
	default:
		monitoring.Logf("Session: journal backlog full, dropping %s record for checkpoint %d", rec.Outcome, rec.Index)
	}
}

func (s *Session) writeJournal() {
	defer close(s.journalDone)
	for rec := range s.journal {
		if err := s.recorder.RecordCapture(context.WithoutCancel(s.ctx), rec); err != nil {
			monitoring.Logf("Session: journal write failed: %v", err)
		}
	}
}

func (s *Session) autoCapture() error {
	_, err := s.Capture()
	if err != nil {
		monitoring.Debugf("Session: automatic capture skipped: %v", err)
	}
	return err
}

func (s *Session) countdown(remaining time.Duration) {
	s.publish(Event{Kind: EventCountdown, Remaining: remaining})
}

// SetCaptureMode switches between manual and automatic capture.
func (s *Session) SetCaptureMode(m capturemode.Mode) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.mode.SetMode(m); err != nil {
		return err
	}
	monitoring.Logf("Session: capture mode %s", m)
	s.publishMode()
	return nil
}

// CaptureMode returns the current mode.
func (s *Session) CaptureMode() capturemode.Mode { return s.mode.Mode() }

// ToggleCaptureTrigger is the capture button.
func (s *Session) ToggleCaptureTrigger() (capturemode.ToggleResult, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	res, err := s.mode.Toggle()
	if err != nil {
		return res, err
	}
	if res != capturemode.ToggleCaptured {
		s.publishMode()
	}
	return res, nil
}

// Pause stops automatic capture without leaving automatic mode.
func (s *Session) Pause() {
	s.mode.Stop()
	s.publishMode()
}

// CheckpointStatuses returns the status of every checkpoint in index order.
func (s *Session) CheckpointStatuses() []checkpoint.Entry {
	return s.store.Snapshot()
}

// Progress reports how far the session has come.
func (s *Session) Progress() Progress {
	captured, total := s.store.Counts()
	return Progress{
		Captured:          captured,
		Total:             total,
		InFlight:          s.registry.InFlight(),
		Complete:          total > 0 && captured == total,
		Mode:              s.mode.Mode(),
		AutoCaptureActive: s.mode.AutoCaptureActive(),
		TimeUntilCapture:  s.mode.TimeUntilCapture(),
	}
}

// Subscribe registers a buffered event channel. Slow subscribers miss
// events rather than stall the session.
func (s *Session) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.isClosed() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscriber.
func (s *Session) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Session) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = s.clock.Now()
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) publishMode() {
	p := s.Progress()
	s.publish(Event{Kind: EventMode, Mode: &p.Mode, Progress: &p})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops automatic capture, cancels captures in flight, waits for
// their sinks to return, flushes the journal and closes every subscriber.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.mode.Stop()
	s.cancel()
	s.wg.Wait()

	s.journalMu.Lock()
	s.journalClosed = true
	close(s.journal)
	s.journalMu.Unlock()
	<-s.journalDone

	s.subMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()
	monitoring.Logf("Session: closed")
	return nil
}
