package capture

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/guidance"
)

// ErrTooManyInFlight is returned when the in-flight limit is reached.
var ErrTooManyInFlight = errors.New("too many captures in flight")

// Request is one capture from the moment it is accepted until its sink
// returns.
type Request struct {
	ID          uint64              `json:"id"`
	Index       int                 `json:"index"`
	Ring        int                 `json:"ring"`
	Pose        geom.CameraPose     `json:"pose"`
	Resolution  guidance.Resolution `json:"resolution"`
	RequestedAt time.Time           `json:"requested_at"`
}

// Registry hands out monotonically increasing request ids and tracks the
// captures still in flight.
type Registry struct {
	mu       sync.Mutex
	lastID   uint64
	max      int
	inFlight map[uint64]Request
}

// NewRegistry creates a Registry that admits at most max concurrent
// captures. max < 1 is treated as 1.
func NewRegistry(max int) *Registry {
	if max < 1 {
		max = 1
	}
	return &Registry{max: max, inFlight: make(map[uint64]Request)}
}

// Begin admits req, assigning it the next id.
func (r *Registry) Begin(req Request) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inFlight) >= r.max {
		return Request{}, ErrTooManyInFlight
	}
	r.lastID++
	req.ID = r.lastID
	r.inFlight[req.ID] = req
	return req, nil
}

// Complete removes a request. It reports false for unknown ids.
func (r *Registry) Complete(id uint64) (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.inFlight[id]
	if ok {
		delete(r.inFlight, id)
	}
	return req, ok
}

// InFlight returns the number of captures in flight.
func (r *Registry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

// CanCapture reports whether Begin would admit another capture.
func (r *Registry) CanCapture() bool {
	return r.InFlight() < r.max
}

// Pending returns the in-flight requests ordered by id.
func (r *Registry) Pending() []Request {
	r.mu.Lock()
	out := make([]Request, 0, len(r.inFlight))
	for _, req := range r.inFlight {
		out = append(out, req)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
