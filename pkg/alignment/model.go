// Package alignment manages the mount's alignment model: downloading it,
// optimizing it toward a target RMS, saving and loading named slots, adding
// refinement stars and keeping the local measurement set in step with it.
package alignment

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/unklstewy/mount-modeler/pkg/measurement"
)

var (
	// ErrSimulation is returned by operations that would change the model
	// while the mount reports no persistent model (getalst = -1).
	ErrSimulation = errors.New("mount is in simulation, alignment model not changed")

	// ErrSlotEmpty is returned when the mount cannot load a slot.
	ErrSlotEmpty = errors.New("model slot empty")

	// ErrModelRejected is returned when endalig is not acknowledged.
	ErrModelRejected = errors.New("alignment model rejected by mount")

	// ErrTargetNotReached is returned when optimization stops at the
	// minimum star count above the target RMS.
	ErrTargetNotReached = errors.New("target RMS not reached")

	// ErrCancelled is returned when optimization was cancelled.
	ErrCancelled = errors.New("optimization cancelled")
)

// MinStars is the smallest model optimization will leave on the mount.
const MinStars = 3

// Slot names a model storage slot on the mount.
type Slot string

const (
	SlotBackup Slot = "BACKUP"
	SlotBase   Slot = "BASE"
	SlotRefine Slot = "REFINE"
	SlotActual Slot = "ACTUAL"
	SlotSimple Slot = "SIMPLE"
	SlotDSO1   Slot = "DSO1"
	SlotDSO2   Slot = "DSO2"
)

var knownSlots = []Slot{SlotBackup, SlotBase, SlotRefine, SlotActual, SlotSimple, SlotDSO1, SlotDSO2}

// ParseSlot accepts a slot name in any case, with or without a ".dat"
// suffix, and returns its wire form.
func ParseSlot(name string) (Slot, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.TrimSuffix(s, ".DAT")
	for _, k := range knownSlots {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown model slot %q", name)
}

// Point is one alignment star as reported by the mount.
type Point struct {
	Index      int     `json:"index"` // 1-based, as on the wire
	HourAngle  float64 `json:"hourAngle"`
	RAJNow     float64 `json:"raJNow"`
	DecJNow    float64 `json:"decJNow"`
	RAJ2000    float64 `json:"raJ2000"`
	DecJ2000   float64 `json:"decJ2000"`
	Azimuth    float64 `json:"az"`
	Altitude   float64 `json:"alt"`
	ErrorRMS   float64 `json:"errorRMS"`
	ErrorAngle float64 `json:"errorAngle"`
}

// Model is a downloaded alignment model. Points are in mount order.
type Model struct {
	NumberStars   int     `json:"numberStars"`
	RMS           float64 `json:"rms"`
	PositionAngle float64 `json:"posAngle"`
	PolarError    float64 `json:"polarError"`
	OrthoError    float64 `json:"orthoError"`
	Azimuth       float64 `json:"azimuth"`
	Altitude      float64 `json:"altitude"`
	AzimuthKnobs  float64 `json:"azimuthKnobs"`
	AltitudeKnobs float64 `json:"altitudeKnobs"`
	Terms         int     `json:"terms"`
	Points        []Point `json:"points"`
}

// Worst returns the 0-based position of the point with the largest error.
func (m Model) Worst() (int, bool) {
	if len(m.Points) == 0 {
		return 0, false
	}
	order := make([]int, len(m.Points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.Points[order[a]].ErrorRMS > m.Points[order[b]].ErrorRMS
	})
	return order[0], true
}

// Synchronized reports whether the measurement set describes the model: the
// counts match and every measurement's residual direction agrees with the
// star at the same index.
func Synchronized(model Model, points []measurement.Point) bool {
	if len(points) != model.NumberStars || len(points) != len(model.Points) {
		return false
	}
	for i, p := range points {
		star := model.Points[i]
		if star.ErrorRMS == 0 || p.ModelError == 0 {
			if math.Abs(star.ErrorRMS-p.ModelError) > angleTolerance {
				return false
			}
			continue
		}
		diff := math.Abs(p.ErrorAngle() - star.ErrorAngle)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > angleTolerance {
			return false
		}
	}
	return true
}

// angleTolerance covers the mount reporting whole degrees.
const angleTolerance = 0.5
