package capture

import (
	"time"

	"github.com/banshee-data/ringcapture/internal/capturemode"
	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/guidance"
)

// EventKind names a session event.
type EventKind string

const (
	EventGuidance        EventKind = "guidance"
	EventStatus          EventKind = "status"
	EventCaptureStarted  EventKind = "capture_started"
	EventCaptureFinished EventKind = "capture_finished"
	EventCountdown       EventKind = "countdown"
	EventMode            EventKind = "mode"
	EventComplete        EventKind = "complete"
)

// Event is published to subscribers. Only the fields relevant to Kind are set.
type Event struct {
	Kind       EventKind            `json:"kind"`
	Time       time.Time            `json:"time"`
	Resolution *guidance.Resolution `json:"resolution,omitempty"`
	Hint       string               `json:"hint,omitempty"`
	Statuses   []checkpoint.Entry   `json:"statuses,omitempty"`
	Request    *Request             `json:"request,omitempty"`
	Error      string               `json:"error,omitempty"`
	Remaining  time.Duration        `json:"remaining,omitempty"`
	Mode       *capturemode.Mode    `json:"mode,omitempty"`
	Progress   *Progress            `json:"progress,omitempty"`
}

// Progress summarises a session.
type Progress struct {
	Captured          int              `json:"captured"`
	Total             int              `json:"total"`
	InFlight          int              `json:"in_flight"`
	Complete          bool             `json:"complete"`
	Mode              capturemode.Mode `json:"mode"`
	AutoCaptureActive bool             `json:"auto_capture_active"`
	TimeUntilCapture  time.Duration    `json:"time_until_capture"`
}

const (
	subscriberBuffer = 64
	journalBuffer    = 256
)
