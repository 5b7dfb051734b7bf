// Command ring-plot renders the checkpoint rings of a capture configuration
// to an image. With -db and -session it colors the checkpoints captured in
// a journaled session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/ringcapture/internal/capture"
	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/config"
	"github.com/banshee-data/ringcapture/internal/db"
	"github.com/banshee-data/ringcapture/internal/monitor"
)

func main() {
	var configPath, outPath, dbPath, sessionID string
	var list bool

	flag.StringVar(&configPath, "config", "", "capture configuration JSON (built-in defaults when empty)")
	flag.StringVar(&outPath, "out", "rings.png", "output image; format follows the extension")
	flag.StringVar(&dbPath, "db", "", "capture journal to read captured checkpoints from")
	flag.StringVar(&sessionID, "session", "", "session id in the journal (latest when empty)")
	flag.BoolVar(&list, "list", false, "list journaled sessions and exit")
	flag.Parse()

	cfg := config.EmptyCaptureConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadCaptureConfig(configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	layout, err := cfg.Layout()
	if err != nil {
		log.Fatalf("build layout: %v", err)
	}

	statuses := make([]checkpoint.Entry, layout.Len())
	for i, p := range layout.Poses {
		statuses[i] = checkpoint.Entry{Index: i, Ring: p.Ring, Status: checkpoint.StatusUninitialized}
	}

	if dbPath != "" {
		journal, err := db.NewDB(dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer journal.Close()

		if list {
			listSessions(journal)
			return
		}
		captured, err := markCaptured(journal, sessionID, statuses)
		if err != nil {
			log.Fatalf("read journal: %v", err)
		}
		fmt.Printf("%d/%d checkpoints captured\n", captured, len(statuses))
	} else if list {
		log.Fatal("-list requires -db")
	}

	if err := monitor.SaveRingPlot(outPath, layout, statuses); err != nil {
		log.Fatalf("plot: %v", err)
	}
	fmt.Printf("wrote %s\n", outPath)
}

func listSessions(journal *db.DB) {
	sessions, err := journal.Sessions(context.Background())
	if err != nil {
		log.Fatalf("list sessions: %v", err)
	}
	for _, s := range sessions {
		ended := "running"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %s  -> %s  rings=%d x %d\n",
			s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), ended, s.RingCount, s.CheckpointsPerRing)
	}
}

// markCaptured sets the status of every checkpoint with a successful
// capture in the session and returns how many there are. An empty id
// selects the most recent session.
func markCaptured(journal *db.DB, sessionID string, statuses []checkpoint.Entry) (int, error) {
	ctx := context.Background()
	if sessionID == "" {
		sessions, err := journal.Sessions(ctx)
		if err != nil {
			return 0, err
		}
		if len(sessions) == 0 {
			return 0, db.ErrSessionNotFound
		}
		sessionID = sessions[0].ID
	}
	rows, err := journal.Captures(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	captured := 0
	for _, row := range rows {
		if row.Outcome != capture.OutcomeOK || row.Index < 0 || row.Index >= len(statuses) {
			continue
		}
		if statuses[row.Index].Status != checkpoint.StatusCaptured {
			statuses[row.Index].Status = checkpoint.StatusCaptured
			captured++
		}
	}
	return captured, nil
}
