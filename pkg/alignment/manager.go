package alignment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/coordinates"
	"github.com/unklstewy/mount-modeler/pkg/devices"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

// minInfoFirmware is the first firmware answering getain.
const minInfoFirmware = 21500

var timeNow = time.Now

// StatusSource provides the latest mount snapshot. The dispatcher
// implements it.
type StatusSource interface {
	Snapshot() mount.Snapshot
}

// Options configures a Manager. Every field is optional.
type Options struct {
	Store  devices.PersistentStore
	Sink   devices.MessageSink
	Status StatusSource
	Logger *logger.Logger

	// MeasurementSlot is the store slot holding the measurements of the
	// active model. Defaults to ACTUAL.
	MeasurementSlot string
}

// Manager owns the local view of the alignment model and the measurement
// set behind it. It is safe for concurrent use; mount commands are
// serialized by the underlying transport.
type Manager struct {
	link      mount.Commander
	transform *coordinates.Transform
	store     devices.PersistentStore
	sink      devices.MessageSink
	log       *logger.Logger
	slot      string

	mu           sync.RWMutex
	status       StatusSource
	model        Model
	measurements []measurement.Point
	simulation   bool
	checked      bool

	cancelled atomic.Bool
}

var _ mount.ModelService = (*Manager)(nil)

// NewManager creates a manager sending commands through link.
func NewManager(link mount.Commander, transform *coordinates.Transform, opts Options) *Manager {
	if opts.Sink == nil {
		opts.Sink = devices.Discard
	}
	if opts.MeasurementSlot == "" {
		opts.MeasurementSlot = string(SlotActual)
	}
	return &Manager{
		link:      link,
		transform: transform,
		store:     opts.Store,
		sink:      opts.Sink,
		log:       logger.OrNop(opts.Logger).Component("alignment"),
		slot:      opts.MeasurementSlot,
		status:    opts.Status,
	}
}

// SetStatus sets the snapshot source used for sidereal time and firmware
// checks. The dispatcher and the manager reference each other, so this is
// wired after both exist.
func (m *Manager) SetStatus(s StatusSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// Model returns a copy of the last downloaded model.
func (m *Manager) Model() Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.model
	out.Points = append([]Point(nil), m.model.Points...)
	return out
}

// Measurements returns a copy of the local measurement set.
func (m *Manager) Measurements() []measurement.Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]measurement.Point(nil), m.measurements...)
}

// SetMeasurements replaces the local measurement set.
func (m *Manager) SetMeasurements(points []measurement.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.measurements = append([]measurement.Point(nil), points...)
	measurement.Renumber(m.measurements)
}

// Simulation reports whether the last star count query returned -1.
func (m *Manager) Simulation() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.simulation
}

func (m *Manager) snapshot() (mount.Snapshot, bool) {
	m.mu.RLock()
	s := m.status
	m.mu.RUnlock()
	if s == nil {
		return mount.Snapshot{}, false
	}
	return s.Snapshot(), true
}

// siderealTime returns the LST in hours and the Julian date to convert with.
// A zero date means now.
func (m *Manager) siderealTime() (float64, float64) {
	if snap, ok := m.snapshot(); ok && snap.Connected && snap.JulianDate > 0 {
		return snap.LocalSiderealTime, snap.JulianDate
	}
	jd := coordinates.JulianDate(timeNow())
	return coordinates.LocalSiderealTime(m.transform.Site().Longitude, jd), 0
}

// Download reads the star count, the header and every point from the
// mount. A count below one yields an empty model.
func (m *Manager) Download(ctx context.Context) (Model, error) {
	reply, err := m.link.SendString("getalst")
	if err != nil {
		return Model{}, fmt.Errorf("failed to read star count: %w", err)
	}
	n, err := strconv.Atoi(reply)
	if err != nil {
		return Model{}, fmt.Errorf("invalid star count %q: %w", reply, err)
	}

	m.mu.Lock()
	m.simulation = n == -1
	m.checked = true
	m.mu.Unlock()

	var model Model
	if n < 1 {
		m.setModel(model)
		return model, nil
	}
	model.NumberStars = n

	if m.hasAlignmentInfo() {
		info, err := m.readInfo()
		if err != nil {
			m.log.Warnw("alignment header not decoded, statistics zeroed", "error", err)
		} else {
			model.RMS = info.RMS
			model.PositionAngle = info.PositionAngle
			model.PolarError = info.PolarError
			model.OrthoError = info.OrthoError
			model.Azimuth = info.Azimuth
			model.Altitude = info.Altitude
			model.AzimuthKnobs = info.AzimuthKnobs
			model.AltitudeKnobs = info.AltitudeKnobs
			model.Terms = info.Terms
		}
	}

	lst, jd := m.siderealTime()
	lat := m.transform.Site().Latitude
	model.Points = make([]Point, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return Model{}, err
		}
		p := Point{Index: i}
		reply, err := m.link.SendString("getalp" + strconv.Itoa(i))
		if err != nil {
			return Model{}, fmt.Errorf("failed to read star %d: %w", i, err)
		}
		if star, err := mount.ParseAlignmentPoint(reply); err != nil {
			m.log.Warnw("alignment point not decoded", "index", i, "reply", reply, "error", err)
		} else {
			p = m.convertPoint(i, star, lst, jd, lat)
		}
		model.Points = append(model.Points, p)
	}

	m.setModel(model)
	m.log.Debugw("alignment model downloaded", "stars", n, "rms", model.RMS)
	return model, nil
}

func (m *Manager) hasAlignmentInfo() bool {
	snap, ok := m.snapshot()
	if !ok || snap.FirmwareVersion == 0 {
		return true
	}
	return snap.FirmwareVersion >= minInfoFirmware
}

func (m *Manager) readInfo() (mount.AlignmentInfo, error) {
	reply, err := m.link.SendString("getain")
	if err != nil {
		return mount.AlignmentInfo{}, err
	}
	return mount.ParseAlignmentInfo(reply)
}

// convertPoint turns a hour angle / JNow declination into a full record.
func (m *Manager) convertPoint(i int, star mount.AlignmentPointReply, lst, jd, lat float64) Point {
	ra := coordinates.NormalizeRA(lst - star.HourAngle)
	j2000 := m.transform.JNowToJ2000(coordinates.EquatorialCoordinates{
		RightAscension: ra,
		Declination:    star.Dec,
	}, jd)
	az, alt := coordinates.HADecToAzAlt(star.HourAngle, star.Dec, lat)

	return Point{
		Index:      i,
		HourAngle:  star.HourAngle,
		RAJNow:     ra,
		DecJNow:    star.Dec,
		RAJ2000:    j2000.RightAscension,
		DecJ2000:   j2000.Declination,
		Azimuth:    az,
		Altitude:   alt,
		ErrorRMS:   star.ErrorRMS,
		ErrorAngle: star.ErrorAngle,
	}
}

func (m *Manager) setModel(model Model) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Refresh downloads the model and reports it to the user.
func (m *Manager) Refresh(ctx context.Context) error {
	model, err := m.Download(ctx)
	if err != nil {
		return err
	}
	if m.Simulation() {
		devices.Postf(m.sink, devices.LevelInfo, "Mount in simulation, no alignment model available")
		return nil
	}
	devices.Postf(m.sink, devices.LevelInfo, "Alignment model: %d stars, RMS %.2f arcsec, polar error %.1f arcsec",
		model.NumberStars, model.RMS, model.PolarError)
	return nil
}

// Startup loads the stored measurements, downloads the model and
// reconciles the two.
func (m *Manager) Startup(ctx context.Context) error {
	if m.store != nil {
		points, err := m.store.LoadMeasurements(ctx, m.slot)
		switch {
		case err == nil:
			m.SetMeasurements(points)
		case errors.Is(err, devices.ErrNotFound):
			m.log.Debugw("no stored measurements", "slot", m.slot)
		default:
			m.log.Warnw("failed to load measurements", "slot", m.slot, "error", err)
		}
	}

	if _, err := m.Download(ctx); err != nil {
		return err
	}
	if m.Simulation() {
		devices.Postf(m.sink, devices.LevelInfo, "Mount in simulation, alignment model not synchronized")
		return nil
	}
	m.Reconcile(ctx)
	return nil
}

// guard rejects model changes on a simulated mount without sending any
// command, once the simulation state is known.
func (m *Manager) guard(ctx context.Context, what string) error {
	m.mu.RLock()
	checked, sim := m.checked, m.simulation
	m.mu.RUnlock()

	if !checked {
		reply, err := m.link.SendString("getalst")
		if err != nil {
			return err
		}
		sim = reply == "-1"
		m.mu.Lock()
		m.simulation, m.checked = sim, true
		m.mu.Unlock()
	}
	if sim {
		devices.Postf(m.sink, devices.LevelInfo, "%s skipped: mount is in simulation", what)
		return fmt.Errorf("%s: %w", what, ErrSimulation)
	}
	return ctx.Err()
}

// Cancel stops a running optimization before its next iteration.
func (m *Manager) Cancel() {
	m.cancelled.Store(true)
}

// RunTargetRMS deletes the worst star until the model RMS is at or below
// target or only MinStars remain.
func (m *Manager) RunTargetRMS(ctx context.Context, target float64) error {
	if err := m.guard(ctx, "Target RMS optimization"); err != nil {
		return err
	}
	m.cancelled.Store(false)

	model, err := m.Download(ctx)
	if err != nil {
		return err
	}

	deleted := 0
	for model.NumberStars > MinStars && model.RMS > target {
		if m.cancelled.Load() || ctx.Err() != nil {
			devices.Postf(m.sink, devices.LevelWarning, "Optimization cancelled after %d deletions", deleted)
			return ErrCancelled
		}
		if model, err = m.deleteWorst(ctx, model); err != nil {
			return err
		}
		deleted++
	}

	if model.RMS > target && model.NumberStars > 0 {
		devices.Postf(m.sink, devices.LevelWarning,
			"Target RMS %.2f not reached: %d stars left with RMS %.2f", target, model.NumberStars, model.RMS)
		return fmt.Errorf("%w: %d stars left with RMS %.2f arcsec", ErrTargetNotReached, model.NumberStars, model.RMS)
	}
	devices.Postf(m.sink, devices.LevelInfo, "Optimization finished: %d stars deleted, RMS %.2f arcsec", deleted, model.RMS)
	return nil
}

// DeleteWorstPoint removes the star with the largest error once.
func (m *Manager) DeleteWorstPoint(ctx context.Context) error {
	if err := m.guard(ctx, "Delete worst point"); err != nil {
		return err
	}
	model, err := m.Download(ctx)
	if err != nil {
		return err
	}
	if _, ok := model.Worst(); !ok {
		return errors.New("alignment model has no stars")
	}
	model, err = m.deleteWorst(ctx, model)
	if err != nil {
		return err
	}
	devices.Postf(m.sink, devices.LevelInfo, "Worst point deleted, %d stars left with RMS %.2f arcsec", model.NumberStars, model.RMS)
	return nil
}

// deleteWorst removes the worst star on the mount, drops the matching
// measurement and downloads the model again.
func (m *Manager) deleteWorst(ctx context.Context, model Model) (Model, error) {
	worst, ok := model.Worst()
	if !ok {
		return model, nil
	}
	wire := worst + 1
	reply, err := m.link.SendString("delalst" + strconv.Itoa(wire))
	if err != nil {
		return model, err
	}
	if reply != "1" {
		return model, fmt.Errorf("mount refused to delete star %d: %q", wire, reply)
	}
	m.log.Infow("alignment star deleted", "index", wire, "errorRMS", model.Points[worst].ErrorRMS)

	m.mu.Lock()
	if len(m.measurements) == model.NumberStars {
		m.measurements = append(m.measurements[:worst:worst], m.measurements[worst+1:]...)
		measurement.Renumber(m.measurements)
	}
	m.mu.Unlock()
	m.persist(ctx, m.slot)

	return m.Download(ctx)
}

// Clear deletes every star on the mount and the local measurements.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.guard(ctx, "Clear alignment"); err != nil {
		return err
	}
	if _, err := m.link.SendString("delalig"); err != nil {
		return err
	}
	m.setModel(Model{})
	m.SetMeasurements(nil)
	m.persist(ctx, m.slot)
	devices.Postf(m.sink, devices.LevelInfo, "Alignment model cleared")
	return nil
}

// persist writes the measurement set to the store under slot.
func (m *Manager) persist(ctx context.Context, slot string) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveMeasurements(ctx, slot, m.Measurements()); err != nil {
		m.log.Warnw("failed to save measurements", "slot", slot, "error", err)
	}
}
