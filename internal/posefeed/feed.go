// Package posefeed reads camera poses from a tracker: a serial device, any
// line-oriented stream, or a synthetic orbit.
package posefeed

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/google/uuid"
)

// Config configures a Feed.
type Config struct {
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Stats counts what a Feed has read.
type Stats struct {
	Lines     uint64 `json:"lines"`
	Poses     uint64 `json:"poses"`
	Malformed uint64 `json:"malformed"`
}

// Feed reads pose lines from a source, hands each parsed pose to a handler
// and mirrors the raw lines to subscribers.
type Feed struct {
	src    io.ReadCloser
	logger *log.Logger

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	closing      atomic.Bool

	lines, poses, malformed atomic.Uint64
}

// NewFeed creates a Feed over src. The Feed owns src and closes it on Close.
func NewFeed(src io.ReadCloser, cfg Config) *Feed {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Feed{
		src:         src,
		logger:      logger,
		subscribers: make(map[string]chan string),
	}
}

// Subscribe returns a channel receiving every raw line read. Lines are
// dropped for a subscriber that is not keeping up.
func (f *Feed) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 16)
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	if f.closing.Load() {
		close(ch)
		return id, ch
	}
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Feed) Unsubscribe(id string) {
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Run reads until the source ends, the context is cancelled or the Feed is
// closed. Malformed lines are counted and logged, never fatal. A clean end
// of input returns nil.
func (f *Feed) Run(ctx context.Context, handle func(geom.CameraPose)) error {
	scan := bufio.NewScanner(f.src)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so cancellation is
	// observed even while the source is idle.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if f.closing.Load() {
						return nil
					}
					return err
				default:
					return nil
				}
			}
			if f.closing.Load() {
				return nil
			}
			f.dispatch(line, handle)
		}
	}
}

func (f *Feed) dispatch(line string, handle func(geom.CameraPose)) {
	f.lines.Add(1)

	f.subscriberMu.Lock()
	for _, ch := range f.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
	f.subscriberMu.Unlock()

	if IsComment(line) {
		return
	}
	pose, err := ParsePose(line)
	if err != nil {
		if n := f.malformed.Add(1); n == 1 || n%100 == 0 {
			f.logger.Printf("PoseFeed: %v (%d malformed so far)", err, n)
		}
		return
	}
	f.poses.Add(1)
	if handle != nil {
		handle(pose)
	}
}

// Stats returns the counters.
func (f *Feed) Stats() Stats {
	return Stats{
		Lines:     f.lines.Load(),
		Poses:     f.poses.Load(),
		Malformed: f.malformed.Load(),
	}
}

// Close closes every subscriber and the source.
func (f *Feed) Close() error {
	if f.closing.Swap(true) {
		return nil
	}

	f.subscriberMu.Lock()
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
	f.subscriberMu.Unlock()

	if err := f.src.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}
