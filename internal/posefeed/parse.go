package posefeed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/ringcapture/internal/geom"
)

// ErrMalformedPose is returned for a line that is not six finite numbers.
var ErrMalformedPose = errors.New("malformed pose line")

// A pose line is six numbers, comma or whitespace separated:
//
//	px,py,pz,fx,fy,fz
//
// position in metres followed by the forward vector. Blank lines and lines
// starting with '#' carry no pose.

// IsComment reports whether line carries no pose.
func IsComment(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

// ParsePose parses one pose line.
func ParsePose(line string) (geom.CameraPose, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
	if len(fields) != 6 {
		return geom.CameraPose{}, fmt.Errorf("%w: want 6 fields, got %d", ErrMalformedPose, len(fields))
	}

	var v [6]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return geom.CameraPose{}, fmt.Errorf("%w: field %d: %v", ErrMalformedPose, i+1, err)
		}
		v[i] = x
	}
	pose := geom.CameraPose{
		Position: geom.Vec{X: v[0], Y: v[1], Z: v[2]},
		Forward:  geom.Vec{X: v[3], Y: v[4], Z: v[5]},
	}
	if !geom.IsFinite(pose.Position) || !geom.IsFinite(pose.Forward) {
		return geom.CameraPose{}, fmt.Errorf("%w: non-finite value", ErrMalformedPose)
	}
	return pose, nil
}

// FormatPose renders pose as a pose line without a trailing newline.
func FormatPose(pose geom.CameraPose) string {
	p, f := pose.Position, pose.Forward
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%.6f,%.6f", p.X, p.Y, p.Z, f.X, f.Y, f.Z)
}
