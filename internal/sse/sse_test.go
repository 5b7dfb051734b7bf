package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainWriter is a ResponseWriter that cannot flush.
type plainWriter struct{ header http.Header }

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestOpenRequiresFlusher(t *testing.T) {
	w := &plainWriter{header: http.Header{}}
	_, err := Open(w)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, w.header.Get("Content-Type"))
}

func TestOpenWritesHeadersAndComment(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := Open(rec)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, ": ping\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSendNamedAndUnnamed(t *testing.T) {
	rec := httptest.NewRecorder()
	st, err := Open(rec)
	require.NoError(t, err)
	rec.Body.Reset()

	require.NoError(t, st.Send("", []byte("1.0 2.0")))
	require.NoError(t, st.Send("status", []byte(`{"index":3}`)))
	assert.Equal(t, "data: 1.0 2.0\n\nevent: status\ndata: {\"index\":3}\n\n", rec.Body.String())
}

func TestRelaySkipsUnencodableValuesAndStopsOnClose(t *testing.T) {
	rec := httptest.NewRecorder()
	st, err := Open(rec)
	require.NoError(t, err)
	rec.Body.Reset()

	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)

	Relay(context.Background(), st, ch, func(v int) (string, []byte, error) {
		if v == 2 {
			return "", nil, errors.New("bad value")
		}
		return "n", []byte{'0' + byte(v)}, nil
	})
	assert.Equal(t, "event: n\ndata: 1\n\nevent: n\ndata: 3\n\n", rec.Body.String())
}

func TestRelayStopsOnContextDone(t *testing.T) {
	st, err := Open(httptest.NewRecorder())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Relay(ctx, st, make(chan int), func(int) (string, []byte, error) { return "", nil, nil })
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Relay did not return after cancel")
	}
}
