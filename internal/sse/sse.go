// Package sse writes server-sent event streams for the debug and API
// handlers.
package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/ringcapture/internal/monitoring"
)

// ErrUnsupported is returned by Open when the ResponseWriter cannot flush.
var ErrUnsupported = errors.New("streaming unsupported")

// Stream is an open event stream on one response.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// Open writes the event-stream headers and an initial comment so the client
// sees the connection before the first event. Nothing is written when it
// returns an error.
func Open(w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s := &Stream{w: w, flusher: flusher}
	if _, err := w.Write([]byte(": ping\n\n")); err != nil {
		return nil, err
	}
	flusher.Flush()
	return s, nil
}

// Send writes one event and flushes it. An empty name sends an unnamed
// message, which browsers deliver to onmessage.
func (s *Stream) Send(name string, data []byte) error {
	var err error
	if name == "" {
		_, err = fmt.Fprintf(s.w, "data: %s\n\n", data)
	} else {
		_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	}
	if err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Relay sends every value from ch until ch is closed, ctx is done or a write
// fails. encode returns the event name and payload for a value; values it
// cannot encode are logged and skipped.
func Relay[T any](ctx context.Context, s *Stream, ch <-chan T, encode func(T) (string, []byte, error)) {
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return
			}
			name, data, err := encode(v)
			if err != nil {
				monitoring.Logf("sse: failed to encode event: %v", err)
				continue
			}
			if err := s.Send(name, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
