package posefeed

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// OrbitConfig describes a synthetic camera circling the subject.
type OrbitConfig struct {
	Center geom.Vec
	Radius float64       // defaults to 0.21
	Height float64       // offset above Center
	Period time.Duration // one revolution; defaults to 108s
	Rate   time.Duration // pose interval; defaults to 1/30s
	Clock  timeutil.Clock
}

// Orbit is a pose source that emits pose lines for a camera walking a
// circle around the subject, always facing it. It stands in for a tracker
// during development.
type Orbit struct {
	cfg  OrbitConfig
	r    *io.PipeReader
	w    *io.PipeWriter
	done chan struct{}
	once sync.Once
}

// NewOrbit starts emitting poses immediately; read them through the Orbit
// as an io.Reader.
func NewOrbit(cfg OrbitConfig) *Orbit {
	if cfg.Radius <= 0 {
		cfg.Radius = 0.21
	}
	if cfg.Period <= 0 {
		cfg.Period = 108 * time.Second
	}
	if cfg.Rate <= 0 {
		cfg.Rate = time.Second / 30
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	r, w := io.Pipe()
	o := &Orbit{cfg: cfg, r: r, w: w, done: make(chan struct{})}
	go o.run()
	return o
}

// PoseAt returns the pose elapsed into the orbit. The camera starts on the
// +X axis and moves toward +Z.
func (o *Orbit) PoseAt(elapsed time.Duration) geom.CameraPose {
	angle := 2 * math.Pi * float64(elapsed%o.cfg.Period) / float64(o.cfg.Period)
	pos := r3.Add(o.cfg.Center, geom.Vec{
		X: o.cfg.Radius * math.Cos(angle),
		Y: o.cfg.Height,
		Z: o.cfg.Radius * math.Sin(angle),
	})
	fwd, _ := geom.Normalize(r3.Sub(o.cfg.Center, pos))
	return geom.CameraPose{Position: pos, Forward: fwd}
}

func (o *Orbit) run() {
	defer o.w.Close()
	ticker := o.cfg.Clock.NewTicker(o.cfg.Rate)
	defer ticker.Stop()
	start := o.cfg.Clock.Now()
	for {
		select {
		case <-o.done:
			return
		case now := <-ticker.C():
			line := FormatPose(o.PoseAt(now.Sub(start))) + "\n"
			if _, err := io.WriteString(o.w, line); err != nil {
				return
			}
		}
	}
}

// Read implements io.Reader.
func (o *Orbit) Read(p []byte) (int, error) { return o.r.Read(p) }

// Close stops the orbit.
func (o *Orbit) Close() error {
	o.once.Do(func() { close(o.done) })
	return o.r.Close()
}
