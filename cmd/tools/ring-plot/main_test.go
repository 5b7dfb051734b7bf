package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/ringcapture/internal/capture"
	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/db"
)

func TestMarkCaptured(t *testing.T) {
	journal, err := db.NewDB(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer journal.Close()

	statuses := make([]checkpoint.Entry, 10)
	if _, err := markCaptured(journal, "", statuses); !errors.Is(err, db.ErrSessionNotFound) {
		t.Fatalf("empty journal: err = %v, want ErrSessionNotFound", err)
	}

	ctx := context.Background()
	sess := &db.SessionRecord{StartedAt: time.Now(), RingCount: 1, CheckpointsPerRing: 10, RingRadius: 0.21}
	if err := journal.InsertSession(ctx, sess); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	now := time.Now()
	for _, rec := range []capture.Record{
		{RequestID: 1, Index: 2, Outcome: capture.OutcomeOK, RequestedAt: now, CompletedAt: now},
		{RequestID: 2, Index: 2, Outcome: capture.OutcomeOK, RequestedAt: now, CompletedAt: now},
		{RequestID: 3, Index: 4, Outcome: capture.OutcomeFailed, RequestedAt: now, CompletedAt: now},
		{RequestID: 0, Index: -1, Outcome: capture.OutcomeRejected, RequestedAt: now, CompletedAt: now},
		{RequestID: 4, Index: 7, Outcome: capture.OutcomeOK, RequestedAt: now, CompletedAt: now},
	} {
		if _, err := journal.RecordCapture(ctx, sess.ID, rec); err != nil {
			t.Fatalf("RecordCapture: %v", err)
		}
	}

	for i := range statuses {
		statuses[i] = checkpoint.Entry{Index: i, Ring: 1, Status: checkpoint.StatusUninitialized}
	}
	n, err := markCaptured(journal, "", statuses)
	if err != nil {
		t.Fatalf("markCaptured: %v", err)
	}
	if n != 2 {
		t.Errorf("captured = %d, want 2", n)
	}
	for i, e := range statuses {
		want := checkpoint.StatusUninitialized
		if i == 2 || i == 7 {
			want = checkpoint.StatusCaptured
		}
		if e.Status != want {
			t.Errorf("checkpoint %d status = %s, want %s", i, e.Status, want)
		}
	}
}
