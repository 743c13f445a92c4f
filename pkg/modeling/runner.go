package modeling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/coordinates"
	"github.com/unklstewy/mount-modeler/pkg/devices"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
	"github.com/unklstewy/mount-modeler/pkg/mount"
	"github.com/unklstewy/mount-modeler/pkg/points"
)

// ModelBuilder collects refinement stars into a new alignment model.
// alignment.Manager implements it.
type ModelBuilder interface {
	BeginBatch(ctx context.Context) error
	AddStar(ctx context.Context, s alignment.Star) (int, error)
	EndBatch(ctx context.Context) error
	SetMeasurements(points []measurement.Point)
}

// StatusSource provides the latest mount snapshot.
type StatusSource interface {
	Snapshot() mount.Snapshot
}

// Metrics observes runs.
type Metrics interface {
	PointFinished(stage string)
	RunFinished(mode string, outcome string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) PointFinished(string) {}
func (nopMetrics) RunFinished(string, string, time.Duration) {}

// Deps are the collaborators of a Runner. Link, Status and Transform are
// required; the rest may be nil.
type Deps struct {
	Link      mount.Commander
	Status    StatusSource
	Transform *coordinates.Transform
	Models    ModelBuilder
	Imager    devices.Imager
	Solver    devices.Solver
	Dome      devices.Dome
	Store     devices.PersistentStore
	Sink      devices.MessageSink
	Metrics   Metrics
	Logger    *logger.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID        string
	Progress     Progress
	Measurements []measurement.Point
}

// Runner executes modeling runs one at a time.
type Runner struct {
	deps Deps
	log  *logger.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	progress  Progress
	listeners []func(Progress)
}

// NewRunner creates a runner.
func NewRunner(deps Deps) *Runner {
	if deps.Sink == nil {
		deps.Sink = devices.Discard
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Runner{
		deps: deps,
		log:  logger.OrNop(deps.Logger).Component("modeling"),
	}
}

// OnProgress registers fn to be called on every state change. fn runs on
// the run's goroutine and may call Cancel.
func (r *Runner) OnProgress(fn func(Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Progress returns the progress of the current or last run.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Cancel stops the active run. Slewing and settling end at once; a capture
// or solve in flight completes and its result is discarded. Stars already
// added stay pending on the mount and the previous model remains in the
// BACKUP slot.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run is the state of one Run call.
type run struct {
	*Runner
	ctx     context.Context
	opts    Options
	started time.Time

	progress  Progress
	durations []time.Duration
	results   []measurement.Point
}

// Run visits every point of plan. It blocks until the run ends and returns
// ErrCancelled when Cancel was called or ctx was done.
func (r *Runner) Run(ctx context.Context, plan []points.Point, opts Options) (Result, error) {
	opts = opts.withDefaults()

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return Result{}, ErrRunActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
	}()

	rn := &run{
		Runner:  r,
		ctx:     runCtx,
		opts:    opts,
		started: time.Now(),
		progress: Progress{
			RunID: opts.RunID,
			Mode:  opts.Mode.String(),
			Total: len(plan),
		},
	}

	err := rn.execute(plan)
	rn.finish(err)
	return Result{RunID: rn.progress.RunID, Progress: rn.progress, Measurements: rn.results}, err
}

func (rn *run) execute(plan []points.Point) error {
	if len(plan) == 0 {
		devices.Postf(rn.deps.Sink, devices.LevelInfo, "Modeling finished: no points to process")
		return nil
	}
	if err := rn.check(plan); err != nil {
		return err
	}

	rn.enter(Preparing, 0)
	rn.log.Infow("modeling run started", "run", rn.progress.RunID, "mode", rn.opts.Mode, "points", len(plan))
	devices.Postf(rn.deps.Sink, devices.LevelInfo, "Modeling started: %d points, mode %s", len(plan), rn.opts.Mode)

	if rn.opts.Mode == Refine {
		if err := rn.deps.Models.BeginBatch(rn.ctx); err != nil {
			return fmt.Errorf("failed to open alignment: %w", err)
		}
	}

	for i, p := range plan {
		if rn.cancelled() {
			return ErrCancelled
		}
		begin := time.Now()
		err := rn.visit(i, p)
		switch {
		case errors.Is(err, ErrCancelled):
			return err
		case err != nil:
			rn.log.Warnw("point skipped", "index", i+1, "az", p.Azimuth, "alt", p.Altitude, "error", err)
			devices.Postf(rn.deps.Sink, devices.LevelWarning, "Point %d skipped: %v", i+1, err)
		}
		rn.durations = append(rn.durations, time.Since(begin))
		rn.progress.ETA = estimateRemaining(rn.durations, len(plan)-i-1)
	}

	if rn.cancelled() {
		return ErrCancelled
	}
	return rn.finalize()
}

func (rn *run) check(plan []points.Point) error {
	if rn.opts.Mode == Refine && rn.deps.Models == nil {
		return fmt.Errorf("refine run needs an alignment model: %w", devices.ErrUnavailable)
	}
	for _, p := range plan {
		if !p.SlewOnly && (rn.deps.Imager == nil || rn.deps.Solver == nil) {
			return fmt.Errorf("run needs an imager and a solver: %w", devices.ErrUnavailable)
		}
	}
	return nil
}

// visit moves to one point and, unless it is slew-only, measures it.
func (rn *run) visit(i int, p points.Point) error {
	rn.enter(Slewing, i)
	if err := rn.slew(p); err != nil {
		return err
	}
	rn.progress.Slewed++
	rn.deps.Metrics.PointFinished("slewed")

	rn.enter(Settling, i)
	if err := rn.sleep(rn.opts.SettlingTime); err != nil {
		return err
	}
	if p.SlewOnly {
		return nil
	}

	if rn.opts.ToggleTracking {
		if err := rn.deps.Link.SendBlind("AP"); err != nil {
			return err
		}
	}

	rn.enter(Imaging, i)
	m, err := rn.capture(i, p)
	if rn.opts.ToggleTracking {
		if err := rn.deps.Link.SendBlind("RT9"); err != nil {
			rn.log.Warnw("failed to stop tracking", "error", err)
		}
	}
	if err != nil {
		return err
	}
	rn.progress.Imaged++
	rn.deps.Metrics.PointFinished("imaged")

	rn.enter(Solving, i)
	if err := rn.solve(&m); err != nil {
		return err
	}
	rn.progress.Solved++
	rn.deps.Metrics.PointFinished("solved")

	if rn.cancelled() {
		return ErrCancelled
	}

	rn.enter(Submitting, i)
	if err := rn.submit(m); err != nil {
		return err
	}
	m.Index = len(rn.results) + 1
	rn.results = append(rn.results, m)
	rn.progress.Processed++
	rn.deps.Metrics.PointFinished("processed")
	return nil
}

func (rn *run) slew(p points.Point) error {
	start := time.Now()
	if err := mount.SlewAltAz(rn.deps.Link, p.Azimuth, p.Altitude, rn.opts.Tracking); err != nil {
		return err
	}
	if rn.deps.Dome != nil {
		if err := rn.deps.Dome.SlewTo(rn.ctx, devices.ClampDomeAzimuth(p.Azimuth)); err != nil {
			rn.log.Warnw("dome did not accept slew", "az", p.Azimuth, "error", err)
		}
	}
	return rn.waitStopped(start)
}

// waitStopped polls until a snapshot taken after start shows the mount at
// rest and the dome, if any, idle.
func (rn *run) waitStopped(start time.Time) error {
	deadline := time.NewTimer(rn.opts.SlewTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(rn.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rn.ctx.Done():
			return ErrCancelled
		case <-deadline.C:
			return ErrSlewTimeout
		case <-ticker.C:
		}

		snap := rn.deps.Status.Snapshot()
		if snap.UpdatedAt.Before(start) || snap.Slewing {
			continue
		}
		if rn.deps.Dome != nil && rn.deps.Dome.Status() == devices.DomeSlewing {
			continue
		}
		return nil
	}
}

func (rn *run) sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-rn.ctx.Done():
		return ErrCancelled
	case <-t.C:
		return nil
	}
}

// capture takes the image and stamps the measurement with the mount pose
// at exposure start.
func (rn *run) capture(i int, p points.Point) (measurement.Point, error) {
	snap := rn.deps.Status.Snapshot()
	m := measurement.Point{
		AzimuthTarget:     p.Azimuth,
		AltitudeTarget:    p.Altitude,
		RAJ2000:           snap.RAJ2000,
		DecJ2000:          snap.DecJ2000,
		RAJNow:            snap.RAJNow,
		DecJNow:           snap.DecJNow,
		Pierside:          snap.Pierside,
		LocalSiderealTime: snap.LocalSiderealTime,
		JulianDate:        snap.JulianDate,
		Exposure:          rn.opts.Exposure,
		Binning:           rn.opts.Binning,
		CapturedAt:        time.Now().UTC(),
	}

	// a started exposure is allowed to finish
	ctx := context.WithoutCancel(rn.ctx)
	path, err := rn.deps.Imager.Capture(ctx, rn.opts.captureRequest())
	if err != nil {
		return m, fmt.Errorf("capture of point %d failed: %w", i+1, err)
	}
	m.ImagePath = path
	return m, nil
}

func (rn *run) solve(m *measurement.Point) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(rn.ctx), rn.opts.SolveTimeout)
	defer cancel()

	sol, err := rn.deps.Solver.Solve(ctx, m.ImagePath, rn.opts.PixelScale, rn.opts.BlindSolve)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSolveFailed, m.ImagePath, err)
	}

	m.RAJ2000Solved = sol.RAJ2000
	m.DecJ2000Solved = sol.DecJ2000
	m.PixelScale = sol.PixelScale
	m.PositionAngle = sol.PositionAngle
	m.SolveTime = sol.SolveTime

	jnow := rn.deps.Transform.J2000ToJNow(coordinates.EquatorialCoordinates{
		RightAscension: sol.RAJ2000,
		Declination:    sol.DecJ2000,
	}, m.JulianDate)
	m.RAJNowSolved = jnow.RightAscension
	m.DecJNowSolved = jnow.Declination

	m.ComputeResiduals()
	return nil
}

func (rn *run) submit(m measurement.Point) error {
	switch rn.opts.Mode {
	case Refine:
		_, err := rn.deps.Models.AddStar(rn.ctx, alignment.StarFromMeasurement(m))
		return err
	case SyncOnly:
		return mount.SyncPosition(rn.deps.Link, m.RAJNowSolved, m.DecJNowSolved)
	default:
		return nil
	}
}

func (rn *run) finalize() error {
	rn.enter(Finalizing, rn.progress.Total-1)

	if rn.opts.Mode == Refine {
		rn.deps.Models.SetMeasurements(rn.results)
		if err := rn.deps.Models.EndBatch(rn.ctx); err != nil {
			return err
		}
	}

	if rn.opts.Slot != "" && rn.deps.Store != nil && len(rn.results) > 0 {
		if err := rn.deps.Store.SaveMeasurements(rn.ctx, rn.opts.Slot, rn.results); err != nil {
			return fmt.Errorf("failed to store measurements: %w", err)
		}
	}
	return nil
}

func (rn *run) cancelled() bool {
	return rn.ctx.Err() != nil
}

// enter switches state and notifies the listeners.
func (rn *run) enter(s State, index int) {
	rn.progress.State = s
	rn.progress.Phase = s.String()
	rn.progress.Index = index
	rn.progress.Elapsed = time.Since(rn.started)
	rn.publish()
}

func (rn *run) publish() {
	p := rn.progress
	rn.mu.Lock()
	rn.Runner.progress = p
	listeners := append([]func(Progress){}, rn.listeners...)
	rn.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

func (rn *run) finish(err error) {
	elapsed := time.Since(rn.started)
	outcome := "finished"

	switch {
	case errors.Is(err, ErrCancelled):
		outcome = "cancelled"
		devices.Postf(rn.deps.Sink, devices.LevelWarning,
			"Modeling cancelled after %d of %d points", rn.progress.Processed, rn.progress.Total)
	case err != nil:
		outcome = "failed"
		devices.Postf(rn.deps.Sink, devices.LevelError, "Modeling failed: %v", err)
	case rn.progress.Total > 0:
		devices.Postf(rn.deps.Sink, devices.LevelInfo,
			"Modeling finished: %d of %d points processed in %s",
			rn.progress.Processed, rn.progress.Total, elapsed.Round(time.Second))
	}

	rn.log.Infow("modeling run ended", "run", rn.progress.RunID, "outcome", outcome,
		"slewed", rn.progress.Slewed, "imaged", rn.progress.Imaged,
		"solved", rn.progress.Solved, "processed", rn.progress.Processed)
	rn.deps.Metrics.RunFinished(rn.opts.Mode.String(), outcome, elapsed)

	rn.progress.ETA = 0
	rn.enter(Idle, rn.progress.Index)
}
