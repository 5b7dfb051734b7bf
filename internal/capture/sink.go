package capture

import (
	"context"
	"log"
	"time"

	"github.com/banshee-data/ringcapture/internal/capturemode"
)

// Sink performs the capture itself: taking the photo, writing it out, or
// forwarding the request to the device that does. Capture may block; the
// Session always calls it off the pose path.
type Sink interface {
	Capture(ctx context.Context, req Request) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, req Request) error

// Capture calls f.
func (f SinkFunc) Capture(ctx context.Context, req Request) error { return f(ctx, req) }

// LogSink acknowledges every request after logging it. It stands in for a
// camera when the service runs without one.
type LogSink struct {
	Logger *log.Logger
}

// Capture logs req.
func (s LogSink) Capture(ctx context.Context, req Request) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("capture %d: checkpoint %d (ring %d) at %v", req.ID, req.Index, req.Ring, req.Pose.Position)
	return ctx.Err()
}

// Outcome is the journal result of a capture attempt.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
)

// Record is one journal entry. Rejected attempts carry RequestID 0.
type Record struct {
	RequestID   uint64
	Index       int
	Ring        int
	Mode        capturemode.Kind
	Outcome     Outcome
	Error       string
	RequestedAt time.Time
	CompletedAt time.Time
}

// Recorder persists capture attempts.
type Recorder interface {
	RecordCapture(ctx context.Context, rec Record) error
}
