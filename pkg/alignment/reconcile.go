package alignment

import (
	"context"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
	"github.com/unklstewy/mount-modeler/pkg/devices"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
)

// ReconcileResult tells what Reconcile did.
type ReconcileResult int

const (
	// ReconcileNothing means both sides were empty.
	ReconcileNothing ReconcileResult = iota
	// ReconcileUpdated means the residuals were rewritten from the model.
	ReconcileUpdated
	// ReconcileReconstructed means measurements were rebuilt from the model.
	ReconcileReconstructed
	// ReconcileMismatch means both sides were left alone.
	ReconcileMismatch
)

func (r ReconcileResult) String() string {
	switch r {
	case ReconcileUpdated:
		return "updated"
	case ReconcileReconstructed:
		return "reconstructed"
	case ReconcileMismatch:
		return "mismatch"
	default:
		return "nothing"
	}
}

// Reconcile brings the measurement set in line with the last downloaded
// model. With equal counts the residuals are overwritten from the model's
// error magnitudes and angles; with no measurements at all they are
// rebuilt from the model; any other difference is reported and left alone.
func (m *Manager) Reconcile(ctx context.Context) ReconcileResult {
	m.mu.Lock()
	model := m.model
	n, k := model.NumberStars, len(m.measurements)

	var result ReconcileResult
	switch {
	case n == k && n == len(model.Points) && n > 0:
		for i := range m.measurements {
			star := model.Points[i]
			m.measurements[i].Index = i + 1
			m.measurements[i].ApplyModelError(star.ErrorRMS, star.ErrorAngle)
		}
		result = ReconcileUpdated
	case n > 0 && k == 0:
		m.measurements = make([]measurement.Point, 0, len(model.Points))
		for _, star := range model.Points {
			m.measurements = append(m.measurements, stubFromStar(star))
		}
		result = ReconcileReconstructed
	case n == 0 && k == 0:
		result = ReconcileNothing
	default:
		result = ReconcileMismatch
	}
	m.mu.Unlock()

	switch result {
	case ReconcileUpdated, ReconcileReconstructed:
		m.persist(ctx, m.slot)
		m.log.Debugw("measurements reconciled", "result", result.String(), "stars", n)
	case ReconcileMismatch:
		devices.Postf(m.sink, devices.LevelWarning,
			"Measurements (%d points) do not match the alignment model (%d stars)", k, n)
	}
	return result
}

// stubFromStar rebuilds a measurement from what the mount keeps of it.
func stubFromStar(star Point) measurement.Point {
	p := measurement.Point{
		Index:             star.Index,
		AzimuthTarget:     star.Azimuth,
		AltitudeTarget:    star.Altitude,
		RAJ2000:           star.RAJ2000,
		DecJ2000:          star.DecJ2000,
		RAJNow:            star.RAJNow,
		DecJNow:           star.DecJNow,
		LocalSiderealTime: coordinates.NormalizeRA(star.RAJNow + star.HourAngle),
	}
	p.ApplyModelError(star.ErrorRMS, star.ErrorAngle)
	return p
}
