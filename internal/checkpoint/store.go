package checkpoint

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the capture state of one checkpoint.
type Status string

const (
	StatusUninitialized Status = "uninitialized" // not targeted, not captured
	StatusPointed       Status = "pointed"       // currently targeted by the camera
	StatusCaptured      Status = "captured"      // photo taken; terminal
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUninitialized, StatusPointed, StatusCaptured:
		return true
	}
	return false
}

var (
	// ErrIndexOutOfRange is returned for a checkpoint index outside the layout.
	ErrIndexOutOfRange = errors.New("checkpoint index out of range")
	// ErrUnknownStatus is returned when setting a status that does not exist.
	ErrUnknownStatus = errors.New("unknown checkpoint status")
)

// Entry is one row of a status snapshot.
type Entry struct {
	Index  int    `json:"index"`
	Ring   int    `json:"ring"`
	Status Status `json:"status"`
}

// Store tracks the Status of every checkpoint in a Layout.
//
// At most one checkpoint is pointed at any time; pointing at a new one
// demotes the previous one. A captured checkpoint never changes status
// again: any attempt to do so is silently ignored.
type Store struct {
	layout *Layout

	mu       sync.RWMutex
	statuses []Status
	pointed  int // index of the pointed checkpoint, -1 if none
	ready    bool
}

// NewStore creates a Store with every checkpoint uninitialized. The store
// is not ready until MarkReady is called.
func NewStore(layout *Layout) *Store {
	statuses := make([]Status, layout.Len())
	for i := range statuses {
		statuses[i] = StatusUninitialized
	}
	return &Store{
		layout:   layout,
		statuses: statuses,
		pointed:  -1,
	}
}

// Layout returns the immutable geometry behind the store.
func (s *Store) Layout() *Layout { return s.layout }

// Len is the number of checkpoints.
func (s *Store) Len() int { return len(s.statuses) }

// MarkReady opens the store for guidance. Presentation code calls this
// once every checkpoint marker has been loaded.
func (s *Store) MarkReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// Ready reports whether MarkReady has been called.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Get returns the pose and current status of a checkpoint.
func (s *Store) Get(index int) (Pose, Status, error) {
	if index < 0 || index >= len(s.statuses) {
		return Pose{}, "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	s.mu.RLock()
	st := s.statuses[index]
	s.mu.RUnlock()
	return s.layout.Poses[index], st, nil
}

// SetStatus changes the status of one checkpoint and reports whether
// anything changed. Setting a captured checkpoint is a no-op.
func (s *Store) SetStatus(index int, status Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if index < 0 || index >= len(s.statuses) {
		return false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(index, status), nil
}

func (s *Store) setLocked(index int, status Status) bool {
	cur := s.statuses[index]
	if cur == StatusCaptured || cur == status {
		return false
	}
	if status == StatusPointed && s.pointed >= 0 && s.pointed != index {
		if s.statuses[s.pointed] == StatusPointed {
			s.statuses[s.pointed] = StatusUninitialized
		}
	}
	s.statuses[index] = status
	switch {
	case status == StatusPointed:
		s.pointed = index
	case s.pointed == index:
		s.pointed = -1
	}
	return true
}

// ApplyResolution updates the pointed marker after a guidance frame. When
// matched, index becomes the pointed checkpoint (unless it is already
// captured, in which case nothing is pointed); otherwise the pointed
// checkpoint, if any, falls back to uninitialized.
func (s *Store) ApplyResolution(index int, matched bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if matched && index >= 0 && index < len(s.statuses) {
		if s.statuses[index] != StatusCaptured {
			return s.setLocked(index, StatusPointed)
		}
	}
	if s.pointed < 0 {
		return false
	}
	return s.setLocked(s.pointed, StatusUninitialized)
}

// Pointed returns the currently pointed checkpoint index.
func (s *Store) Pointed() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointed, s.pointed >= 0
}

// Snapshot copies the statuses in index order.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.statuses))
	for i, st := range s.statuses {
		out[i] = Entry{Index: i, Ring: s.layout.Poses[i].Ring, Status: st}
	}
	return out
}

// ForEach calls fn for every checkpoint in index order until fn returns
// false. fn sees a consistent snapshot and may call back into the store.
func (s *Store) ForEach(fn func(Pose, Status) bool) {
	for _, e := range s.Snapshot() {
		if !fn(s.layout.Poses[e.Index], e.Status) {
			return
		}
	}
}

// Counts returns how many checkpoints are captured out of the total.
func (s *Store) Counts() (captured, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.statuses {
		if st == StatusCaptured {
			captured++
		}
	}
	return captured, len(s.statuses)
}
