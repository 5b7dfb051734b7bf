// Package api exposes a capture session over HTTP: pose input, guidance,
// checkpoint statuses, capture controls and a server-sent event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/ringcapture/internal/capture"
	"github.com/banshee-data/ringcapture/internal/capturemode"
	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/db"
	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/guidance"
	"github.com/banshee-data/ringcapture/internal/sse"
)

// ANSI escape codes used by LoggingMiddleware.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server serves one capture session.
type Server struct {
	session      *capture.Session
	journal      *db.DB
	sessionID    string
	autoInterval time.Duration
}

// Options configures a Server. Journal is optional.
type Options struct {
	Journal   *db.DB
	SessionID string
	// AutoInterval is used when a mode request names automatic capture
	// without an interval.
	AutoInterval time.Duration
}

// NewServer creates a Server for session.
func NewServer(session *capture.Session, opts Options) *Server {
	if opts.AutoInterval <= 0 {
		opts.AutoInterval = 900 * time.Millisecond
	}
	return &Server{
		session:      session,
		journal:      opts.Journal,
		sessionID:    opts.SessionID,
		autoInterval: opts.AutoInterval,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration. Pose posts run
// at tracking rate and are not logged.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		if r.URL.Path == "/api/pose" && lrw.statusCode < 400 {
			return
		}
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pose", s.handlePose)
	mux.HandleFunc("/api/guidance", s.showGuidance)
	mux.HandleFunc("/api/checkpoints", s.listCheckpoints)
	mux.HandleFunc("/api/progress", s.showProgress)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/trigger", s.handleTrigger)
	mux.HandleFunc("/api/capture", s.handleCapture)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/captures", s.listCaptures)
	mux.HandleFunc("/api/events", s.streamEvents)
	return mux
}

type poseRequest struct {
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
}

func (p poseRequest) pose() geom.CameraPose {
	return geom.CameraPose{
		Position: geom.Vec{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]},
		Forward:  geom.Vec{X: p.Forward[0], Y: p.Forward[1], Z: p.Forward[2]},
	}
}

type guidanceResponse struct {
	guidance.Resolution
	Matched    bool   `json:"matched"`
	Hint       string `json:"hint"`
	CanCapture bool   `json:"can_capture"`
}

func (s *Server) guidance(res guidance.Resolution) guidanceResponse {
	return guidanceResponse{
		Resolution: res,
		Matched:    res.Matched(),
		Hint:       res.Error.Hint(),
		CanCapture: s.session.CanCapture(),
	}
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req poseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid pose: %v", err))
		return
	}
	res := s.session.HandlePose(req.pose())
	writeJSON(w, http.StatusOK, s.guidance(res))
}

func (s *Server) showGuidance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.guidance(s.session.Resolution()))
}

type checkpointResponse struct {
	Index     int               `json:"index"`
	Ring      int               `json:"ring"`
	Slot      int               `json:"slot"`
	Status    checkpoint.Status `json:"status"`
	Position  [3]float64        `json:"position"`
	Direction [3]float64        `json:"direction"`
}

func vec3(v geom.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (s *Server) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	layout := s.session.Layout()
	statuses := s.session.CheckpointStatuses()
	out := make([]checkpointResponse, len(statuses))
	for i, e := range statuses {
		p := layout.Poses[e.Index]
		out[i] = checkpointResponse{
			Index:     e.Index,
			Ring:      e.Ring,
			Slot:      p.Slot,
			Status:    e.Status,
			Position:  vec3(p.Position),
			Direction: vec3(p.Direction),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) showProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Progress())
}

type modeRequest struct {
	Mode     capturemode.Kind `json:"mode"`
	Interval string           `json:"interval,omitempty"`
}

type modeResponse struct {
	Mode              capturemode.Kind `json:"mode"`
	Interval          string           `json:"interval,omitempty"`
	AutoCaptureActive bool             `json:"auto_capture_active"`
}

func (s *Server) modeResponse() modeResponse {
	m := s.session.CaptureMode()
	resp := modeResponse{Mode: m.Kind, AutoCaptureActive: s.session.Progress().AutoCaptureActive}
	if m.Kind == capturemode.KindAutomatic {
		resp.Interval = m.Interval.String()
	}
	return resp
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.modeResponse())
	case http.MethodPost:
		var req modeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode request: %v", err))
			return
		}
		mode := capturemode.Mode{Kind: req.Mode}
		if req.Mode == capturemode.KindAutomatic {
			mode.Interval = s.autoInterval
			if req.Interval != "" {
				d, err := time.ParseDuration(req.Interval)
				if err != nil {
					writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid interval %q", req.Interval))
					return
				}
				mode.Interval = d
			}
		}
		if err := s.session.SetCaptureMode(mode); err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.modeResponse())
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	result, err := s.session.ToggleCaptureTrigger()
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   result,
		"progress": s.session.Progress(),
	})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, err := s.session.Capture()
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.session.Pause()
	writeJSON(w, http.StatusOK, s.modeResponse())
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.journal == nil {
		writeJSONError(w, http.StatusNotFound, "capture journal disabled")
		return
	}
	rows, err := s.journal.Captures(r.Context(), s.sessionID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read captures: %v", err))
		return
	}
	if rows == nil {
		rows = []db.CaptureRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, events := s.session.Subscribe()
	defer s.session.Unsubscribe(id)

	st, err := sse.Open(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sse.Relay(r.Context(), st, events, func(ev capture.Event) (string, []byte, error) {
		payload, err := json.Marshal(ev)
		return string(ev.Kind), payload, err
	})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrNoCheckpoint), errors.Is(err, capture.ErrTooManyInFlight):
		return http.StatusConflict
	case errors.Is(err, capture.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
