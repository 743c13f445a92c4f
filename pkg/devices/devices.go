// Package devices defines the capabilities the modeling core consumes from
// the outside world: imager, plate solver, dome, environment sensor, message
// sink and measurement store.
//
// Every capability is optional. Components accept nil and degrade to doing
// without the data the capability would have provided.
package devices

import (
	"context"
	"errors"

	"github.com/unklstewy/mount-modeler/pkg/measurement"
)

var (
	// ErrUnavailable is returned when a capability is absent or disconnected.
	ErrUnavailable = errors.New("device unavailable")

	// ErrNotFound is returned by a PersistentStore for an unknown slot.
	ErrNotFound = measurement.ErrSlotNotFound
)

// ImagerStatus is the state reported by an Imager.
type ImagerStatus string

const (
	ImagerIdle         ImagerStatus = "IDLE"
	ImagerCapturing    ImagerStatus = "CAPTURING"
	ImagerBusy         ImagerStatus = "BUSY"
	ImagerMoving       ImagerStatus = "MOVING"
	ImagerDisconnected ImagerStatus = "DISCONNECTED"
	ImagerParked       ImagerStatus = "PARKED"
	ImagerReadyIdle    ImagerStatus = "READY-IDLE"
	ImagerDownloading  ImagerStatus = "DOWNLOADING"
)

// FrameType selects the kind of exposure.
type FrameType string

const (
	FrameLight FrameType = "Light"
	FrameDark  FrameType = "Dark"
	FrameFlat  FrameType = "Flat"
	FrameBias  FrameType = "Bias"
)

// Subframe is a region of interest on the sensor in unbinned pixels.
type Subframe struct {
	OffsetX int
	OffsetY int
	Width   int
	Height  int
}

// CaptureRequest describes one exposure.
type CaptureRequest struct {
	Exposure     float64 // seconds
	Binning      int
	ISO          *int
	Gain         *float64
	FrameType    FrameType
	Subframe     *Subframe
	FastDownload bool
}

// CameraProperties describes the connected camera.
type CameraProperties struct {
	SizeX       int
	SizeY       int
	CanSubframe bool
	Gain        float64
}

// Imager captures images and reports its state.
type Imager interface {
	// Capture takes one exposure and returns the path of the saved image.
	Capture(ctx context.Context, req CaptureRequest) (string, error)

	// Status returns the current camera state.
	Status() ImagerStatus

	// CameraProperties returns sensor geometry and gain.
	CameraProperties() CameraProperties
}

// Solution is the result of a plate solve.
type Solution struct {
	RAJ2000       float64 // hours
	DecJ2000      float64 // degrees
	PixelScale    float64 // arcsec/pixel
	PositionAngle float64 // degrees
	SolveTime     float64 // seconds
}

// Solver recovers the sky position of an image.
type Solver interface {
	Solve(ctx context.Context, imagePath string, pixelScaleHint float64, blind bool) (Solution, error)
}

// DomeStatus is the state reported by a Dome.
type DomeStatus string

const (
	DomeIdle         DomeStatus = "idle"
	DomeSlewing      DomeStatus = "slewing"
	DomeDisconnected DomeStatus = "disconnected"
)

// Dome follows the telescope in azimuth.
type Dome interface {
	SlewTo(ctx context.Context, azimuth float64) error
	Status() DomeStatus
}

// ClampDomeAzimuth limits an azimuth to the range accepted by domes, [0, 359.9].
func ClampDomeAzimuth(az float64) float64 {
	switch {
	case az < 0:
		return 0
	case az > 359.9:
		return 359.9
	default:
		return az
	}
}

// Environment is one reading from an EnvironmentSensor. Nil fields were not
// reported.
type Environment struct {
	Temperature   *float64 // °C
	Pressure      *float64 // hPa
	Humidity      *float64 // %
	DewPoint      *float64 // °C
	CloudCover    *float64 // %
	RainRate      *float64 // mm/h
	WindSpeed     *float64 // m/s
	WindDirection *float64 // degrees
	SQR           *float64 // mag/arcsec²
}

// EnvironmentSensor publishes the latest weather reading.
type EnvironmentSensor interface {
	Environment() Environment
}

// Float returns a pointer to v, for building Environment values.
func Float(v float64) *float64 {
	return &v
}

// PersistentStore keeps measurement sets under named slots.
type PersistentStore interface {
	SaveMeasurements(ctx context.Context, slot string, points []measurement.Point) error

	// LoadMeasurements returns ErrNotFound when nothing is stored for slot.
	LoadMeasurements(ctx context.Context, slot string) ([]measurement.Point, error)
}
