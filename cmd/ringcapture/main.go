// Command ringcapture runs a capture guidance session: it reads camera poses
// from a tracker, resolves them against the checkpoint rings, triggers
// captures and serves the session over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ringcapture/internal/api"
	"github.com/banshee-data/ringcapture/internal/capture"
	"github.com/banshee-data/ringcapture/internal/capturemode"
	"github.com/banshee-data/ringcapture/internal/config"
	"github.com/banshee-data/ringcapture/internal/db"
	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/monitor"
	"github.com/banshee-data/ringcapture/internal/monitoring"
	"github.com/banshee-data/ringcapture/internal/posefeed"
	"github.com/banshee-data/ringcapture/internal/version"
)

var (
	configPath  = flag.String("config", "", "Capture configuration JSON (defaults built in when empty)")
	dbPath      = flag.String("db", "capture_journal.db", "Capture journal database path")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/ttyUSB0", "Tracker serial port (ignored with -dev or -pose-file)")
	baud        = flag.Int("baud", posefeed.DefaultBaudRate, "Tracker serial baud rate")
	poseFile    = flag.String("pose-file", "", "Read pose lines from a file instead of the serial port ('-' for stdin)")
	devMode     = flag.Bool("dev", false, "Use a synthetic orbiting camera instead of a tracker")
	cameraURL   = flag.String("camera-url", "", "POST capture requests to this camera endpoint (logs them when empty)")
	autoMode    = flag.Bool("auto", false, "Start in automatic capture mode")
	debug       = flag.Bool("debug", false, "Log per-frame guidance diagnostics")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetDebug(*debug)
	log.Printf("starting %s", version.String())

	cfg := config.EmptyCaptureConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadCaptureConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("loaded capture config from %s", *configPath)
	}
	layout, err := cfg.Layout()
	if err != nil {
		log.Fatalf("failed to build checkpoint layout: %v", err)
	}

	journal, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer journal.Close()

	rec := &db.SessionRecord{
		StartedAt:          time.Now(),
		RingCount:          len(layout.Rings),
		CheckpointsPerRing: layout.PointsPerRing,
		RingRadius:         layout.Radius,
		Center:             layout.Center,
		Thresholds:         cfg.Thresholds(),
	}
	if err := journal.InsertSession(context.Background(), rec); err != nil {
		log.Fatalf("failed to record session: %v", err)
	}
	log.Printf("capture session %s: %d checkpoints on %d rings", rec.ID, layout.Len(), len(layout.Rings))

	var sink capture.Sink = capture.LogSink{Logger: log.Default()}
	if *cameraURL != "" {
		sink = capture.NewHTTPSink(nil, *cameraURL)
		log.Printf("forwarding captures to %s", *cameraURL)
	}

	session, err := capture.NewSession(capture.Config{
		Layout:      layout,
		Thresholds:  cfg.Thresholds(),
		Sink:        sink,
		Recorder:    journal.Journal(rec.ID),
		MaxInFlight: cfg.GetMaxInFlightCaptures(),
		UpdateEvery: cfg.GetCountdownUpdateInterval(),
	})
	if err != nil {
		log.Fatalf("failed to start capture session: %v", err)
	}
	if *autoMode {
		if err := session.SetCaptureMode(capturemode.Automatic(cfg.GetAutoCaptureInterval())); err != nil {
			log.Fatalf("failed to enable automatic capture: %v", err)
		}
	}

	src, err := openPoseSource(layout.Center, layout.Radius)
	if err != nil {
		log.Fatalf("failed to open pose source: %v", err)
	}
	feed := posefeed.NewFeed(src, posefeed.Config{Logger: log.New(os.Stderr, "PoseFeed: ", log.LstdFlags)})
	defer feed.Close()

	// Create a wait group for the HTTP server and pose feed routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := feed.Run(ctx, func(pose geom.CameraPose) { session.HandlePose(pose) })
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pose feed stopped: %v", err)
		}
		log.Print("pose feed routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(session, api.Options{
			Journal:      journal,
			SessionID:    rec.ID,
			AutoInterval: cfg.GetAutoCaptureInterval(),
		}).ServeMux()
		feed.AttachAdminRoutes(mux)
		journal.AttachAdminRoutes(mux)
		monitor.AttachRoutes(mux, session)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	feed.Close()
	wg.Wait()

	session.Close()
	p := session.Progress()
	if err := journal.EndSession(context.Background(), rec.ID, time.Now()); err != nil {
		log.Printf("failed to close session record: %v", err)
	}
	log.Printf("Graceful shutdown complete: %d/%d checkpoints captured", p.Captured, p.Total)
}

// openPoseSource picks the pose input from the flags: a synthetic orbit in
// dev mode, a file or stdin with -pose-file, otherwise the serial tracker.
func openPoseSource(center geom.Vec, radius float64) (io.ReadCloser, error) {
	switch {
	case *devMode:
		log.Printf("dev mode: synthetic orbit around %v", center)
		return posefeed.NewOrbit(posefeed.OrbitConfig{
			Center: center,
			Radius: radius,
			Height: 0.1,
		}), nil
	case *poseFile == "-":
		return io.NopCloser(os.Stdin), nil
	case *poseFile != "":
		return os.Open(*poseFile)
	default:
		if *port == "" {
			return nil, errors.New("serial port is required")
		}
		return posefeed.OpenSerial(*port, posefeed.PortOptions{BaudRate: *baud})
	}
}
