package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/ringcapture/internal/capture"
	"github.com/banshee-data/ringcapture/internal/capturemode"
	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/guidance"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("capture session not found")

// SessionRecord is the geometry a capture session ran with.
type SessionRecord struct {
	ID                 string
	StartedAt          time.Time
	EndedAt            *time.Time
	RingCount          int
	CheckpointsPerRing int
	RingRadius         float64
	Center             geom.Vec
	Thresholds         guidance.Thresholds
}

// CaptureRow is one journaled capture attempt.
type CaptureRow struct {
	ID        string
	SessionID string
	capture.Record
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// InsertSession stores s, assigning a new uuid when s.ID is empty.
func (db *DB) InsertSession(ctx context.Context, s *SessionRecord) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO capture_sessions (
			session_id, started_at_ns, ring_count, checkpoints_per_ring, ring_radius,
			center_x, center_y, center_z,
			distance_threshold, elevation_threshold_deg, alignment_threshold_deg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, toNanos(s.StartedAt), s.RingCount, s.CheckpointsPerRing, s.RingRadius,
		s.Center.X, s.Center.Y, s.Center.Z,
		s.Thresholds.DistanceM, s.Thresholds.ElevationDeg, s.Thresholds.AlignmentDeg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession stamps the end time of a session.
func (db *DB) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE capture_sessions SET ended_at_ns = ? WHERE session_id = ?`, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Session loads one session.
func (db *DB) Session(ctx context.Context, id string) (*SessionRecord, error) {
	row := db.QueryRowContext(ctx, `
		SELECT session_id, started_at_ns, ended_at_ns, ring_count, checkpoints_per_ring, ring_radius,
			center_x, center_y, center_z,
			distance_threshold, elevation_threshold_deg, alignment_threshold_deg
		FROM capture_sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// Sessions lists sessions, most recent first.
func (db *DB) Sessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, started_at_ns, ended_at_ns, ring_count, checkpoints_per_ring, ring_radius,
			center_x, center_y, center_z,
			distance_threshold, elevation_threshold_deg, alignment_threshold_deg
		FROM capture_sessions ORDER BY started_at_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (*SessionRecord, error) {
	var (
		s       SessionRecord
		started int64
		ended   sql.NullInt64
	)
	if err := r.Scan(
		&s.ID, &started, &ended, &s.RingCount, &s.CheckpointsPerRing, &s.RingRadius,
		&s.Center.X, &s.Center.Y, &s.Center.Z,
		&s.Thresholds.DistanceM, &s.Thresholds.ElevationDeg, &s.Thresholds.AlignmentDeg,
	); err != nil {
		return nil, err
	}
	s.StartedAt = fromNanos(started)
	if ended.Valid {
		t := fromNanos(ended.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}

// RecordCapture journals one capture attempt and returns its uuid.
func (db *DB) RecordCapture(ctx context.Context, sessionID string, rec capture.Record) (string, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO capture_attempts (
			capture_id, session_id, request_id, checkpoint_index, ring,
			mode, outcome, error, requested_at_ns, completed_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, int64(rec.RequestID), rec.Index, rec.Ring,
		string(rec.Mode), string(rec.Outcome), rec.Error,
		toNanos(rec.RequestedAt), toNanos(rec.CompletedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record capture: %w", err)
	}
	return id, nil
}

// Captures lists the attempts of a session in request order.
func (db *DB) Captures(ctx context.Context, sessionID string) ([]CaptureRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT capture_id, session_id, request_id, checkpoint_index, ring,
			mode, outcome, error, requested_at_ns, completed_at_ns
		FROM capture_attempts
		WHERE session_id = ?
		ORDER BY requested_at_ns, rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CaptureRow
	for rows.Next() {
		var (
			c                    CaptureRow
			requestID            int64
			mode, outcome        string
			requested, completed int64
		)
		if err := rows.Scan(
			&c.ID, &c.SessionID, &requestID, &c.Index, &c.Ring,
			&mode, &outcome, &c.Error, &requested, &completed,
		); err != nil {
			return nil, err
		}
		c.RequestID = uint64(requestID)
		c.Mode = capturemode.Kind(mode)
		c.Outcome = capture.Outcome(outcome)
		c.RequestedAt = fromNanos(requested)
		c.CompletedAt = fromNanos(completed)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CaptureCounts returns the number of attempts per outcome for a session.
func (db *DB) CaptureCounts(ctx context.Context, sessionID string) (map[capture.Outcome]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM capture_attempts
		WHERE session_id = ? GROUP BY outcome`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[capture.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[capture.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// Journal records the captures of one session. It implements
// capture.Recorder.
type Journal struct {
	db        *DB
	sessionID string
}

// Journal returns a Recorder bound to sessionID.
func (db *DB) Journal(sessionID string) *Journal {
	return &Journal{db: db, sessionID: sessionID}
}

// SessionID returns the session the journal writes to.
func (j *Journal) SessionID() string { return j.sessionID }

// RecordCapture implements capture.Recorder.
func (j *Journal) RecordCapture(ctx context.Context, rec capture.Record) error {
	_, err := j.db.RecordCapture(ctx, j.sessionID, rec)
	return err
}
