// Package modeling runs a modeling session: for each target it slews the
// mount (and dome), lets it settle, captures an image, plate solves it and
// submits the result to the mount's alignment model.
package modeling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

var (
	// ErrCancelled is returned when a run was cancelled.
	ErrCancelled = errors.New("modeling run cancelled")

	// ErrSolveFailed marks a point whose image could not be solved.
	ErrSolveFailed = errors.New("plate solve failed")

	// ErrSlewTimeout is returned when mount or dome did not stop in time.
	ErrSlewTimeout = errors.New("slew did not finish in time")

	// ErrRunActive is returned by Run while another run is in progress.
	ErrRunActive = errors.New("modeling run already in progress")
)

// Minimum waits.
const (
	MinSlewTimeout  = 60 * time.Second
	MinSolveTimeout = 30 * time.Second
)

// Mode selects what happens with a solved point.
type Mode int

const (
	// Refine adds every solved point as an alignment star.
	Refine Mode = iota
	// SyncOnly syncs the mount on every solved point.
	SyncOnly
	// Analyse only records measurements.
	Analyse
)

func (m Mode) String() string {
	switch m {
	case Refine:
		return "refine"
	case SyncOnly:
		return "sync"
	case Analyse:
		return "analyse"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode looks a mode up by name.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Refine, SyncOnly, Analyse} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown modeling mode %q", s)
}

// Options configures one run.
type Options struct {
	Mode Mode

	// Tracking slews with MS instead of MA.
	Tracking bool

	// ToggleTracking turns tracking on before each image and off after
	// it. Used by analyse runs.
	ToggleTracking bool

	SettlingTime time.Duration
	SlewTimeout  time.Duration
	SolveTimeout time.Duration

	// PollInterval is how often slew completion is checked.
	PollInterval time.Duration

	Exposure     float64 // seconds
	Binning      int
	Gain         *float64
	ISO          *int
	Subframe     *devices.Subframe
	FastDownload bool

	// PixelScale is the expected image scale in arc seconds per pixel.
	PixelScale float64
	BlindSolve bool

	// RunID names the run; empty generates one.
	RunID string

	// Slot, when set, stores the run's measurements under this name.
	// Analyse runs default to ANALYSE.
	Slot string
}

// withDefaults fills unset fields and raises timeouts to their minimum.
func (o Options) withDefaults() Options {
	if o.SlewTimeout < MinSlewTimeout {
		o.SlewTimeout = MinSlewTimeout
	}
	if o.SolveTimeout < MinSolveTimeout {
		o.SolveTimeout = MinSolveTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.Binning < 1 {
		o.Binning = 1
	}
	if o.Exposure <= 0 {
		o.Exposure = 3
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.Mode == Analyse && o.Slot == "" {
		o.Slot = "ANALYSE"
	}
	return o
}

func (o Options) captureRequest() devices.CaptureRequest {
	return devices.CaptureRequest{
		Exposure:     o.Exposure,
		Binning:      o.Binning,
		ISO:          o.ISO,
		Gain:         o.Gain,
		FrameType:    devices.FrameLight,
		Subframe:     o.Subframe,
		FastDownload: o.FastDownload,
	}
}
