package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/internal/server"
	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/modeling"
	"github.com/unklstewy/mount-modeler/pkg/mount"
	"github.com/unklstewy/mount-modeler/pkg/points"
)

// dsoPreview is how far before the object's current position a dso path
// starts, hours.
const dsoPreview = 0.5

// Default counts when the request leaves them out.
const (
	dsoPoints      = 20
	dsoHours       = 4
	timeChangeRuns = 10
	hysteresePairs = 5
)

// buildPlan creates the points of a named plan and removes those below the
// horizon mask or outside the mount's altitude limits.
//
// Refine runs of a refinement plan start with the base points. Survey plans
// are visited east of the meridian first; dso paths and the analyse plans
// keep their time order.
func buildPlan(cfg *config.Config, req server.RunRequest, mode modeling.Mode, snap mount.Snapshot, mask *points.Mask) ([]points.Point, error) {
	lat := cfg.Site.Latitude
	if snap.Connected {
		lat = snap.SiteLatitude
	}
	count := req.Count

	var (
		plan       points.Plan
		refinement = true
		byPier     = true
		err        error
	)
	switch req.Plan {
	case "base":
		plan.Base = basePoints(cfg.Modeling)
		refinement = false
	case "grid":
		plan.Refinement, err = points.Grid(cfg.Modeling.GridRows, cfg.Modeling.GridCols, cfg.Modeling.AltMin, cfg.Modeling.AltMax)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", server.ErrBadRequest, err)
		}
	case "dense":
		plan.Refinement = points.Dense(lat)
	case "normal", "":
		plan.Refinement = points.Normal(lat)
	case "dso":
		if count <= 0 {
			count = dsoPoints
		}
		hours := req.Hours
		if hours <= 0 {
			hours = dsoHours
		}
		ra, dec := snap.RAJNow, snap.DecJNow
		if req.RA != nil {
			ra = *req.RA
		}
		if req.Dec != nil {
			dec = *req.Dec
		}
		plan.Refinement = points.DSOPath(ra, dec, lat, snap.LocalSiderealTime, hours, count, dsoPreview)
		byPier = false
	case "timechange":
		if count <= 0 {
			count = timeChangeRuns
		}
		plan.Refinement = points.TimeChange(snap.Azimuth, snap.Altitude, count)
		refinement, byPier = false, false
	case "hysterese":
		if count <= 0 {
			count = hysteresePairs
		}
		az, alt := snap.Azimuth+180, snap.Altitude
		if req.Azimuth != nil {
			az = *req.Azimuth
		}
		if req.Altitude != nil {
			alt = *req.Altitude
		}
		plan.Refinement = points.Hysterese(snap.Azimuth, snap.Altitude, az, alt, count)
		refinement, byPier = false, false
	case "file":
		file := req.File
		if file == "" {
			file = cfg.Modeling.PointFile
		}
		plan.Refinement, err = points.LoadPointFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", server.ErrBadRequest, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown plan %q", server.ErrBadRequest, req.Plan)
	}

	if refinement && mode == modeling.Refine {
		plan.Base = basePoints(cfg.Modeling)
	}
	if byPier {
		points.SortByPier(plan.Refinement)
	}

	limits := points.DefaultLimits()
	if snap.Connected {
		limits = points.LimitsFromMount(snap.HorizonLimitLow, snap.HorizonLimitHigh)
	}
	out := plan.Points()
	if mask != nil {
		out = mask.DeleteBelowHorizon(out)
	}
	return limits.Filter(out), nil
}

// basePoints are three points in the middle of the modeling altitude range.
func basePoints(cfg config.ModelingConfig) []points.Point {
	return points.Base((cfg.AltMin+cfg.AltMax)/2, cfg.BaseAzimuth)
}

// runOptions converts the modeling section into run options.
func runOptions(cfg config.ModelingConfig, mode string) (modeling.Options, error) {
	if mode == "" {
		mode = cfg.Mode
	}
	m, err := modeling.ParseMode(mode)
	if err != nil {
		return modeling.Options{}, fmt.Errorf("%w: %v", server.ErrBadRequest, err)
	}
	return modeling.Options{
		Mode:           m,
		Tracking:       cfg.Tracking,
		ToggleTracking: m == modeling.Analyse,
		SettlingTime:   seconds(cfg.SettlingSeconds),
		SlewTimeout:    seconds(cfg.SlewTimeoutSeconds),
		SolveTimeout:   seconds(cfg.SolveTimeoutSeconds),
		Exposure:       cfg.Exposure,
		Binning:        cfg.Binning,
		PixelScale:     cfg.PixelScale,
		BlindSolve:     cfg.BlindSolve,
	}, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type snapshotter interface {
	Snapshot() mount.Snapshot
}

// runs starts modeling runs in the background for the HTTP API.
type runs struct {
	ctx    context.Context
	cfg    *config.Config
	runner *modeling.Runner
	status snapshotter
	mask   *points.Mask
	log    *logger.Logger

	wg sync.WaitGroup
}

var _ server.Runs = (*runs)(nil)

func (r *runs) Progress() modeling.Progress { return r.runner.Progress() }
func (r *runs) Running() bool               { return r.runner.Running() }
func (r *runs) Cancel()                     { r.runner.Cancel() }

// Start builds the plan and runs it until it ends or the service stops.
func (r *runs) Start(req server.RunRequest) (string, error) {
	if r.runner.Running() {
		return "", modeling.ErrRunActive
	}
	opts, err := runOptions(r.cfg.Modeling, req.Mode)
	if err != nil {
		return "", err
	}
	plan, err := buildPlan(r.cfg, req, opts.Mode, r.status.Snapshot(), r.mask)
	if err != nil {
		return "", err
	}

	opts.RunID = uuid.NewString()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.runner.Run(r.ctx, plan, opts)
		if err != nil {
			r.log.Warnw("modeling run ended", "run_id", opts.RunID, "error", err)
			return
		}
		r.log.Infow("modeling run finished", "run_id", res.RunID, "points", len(res.Measurements))
	}()

	return opts.RunID, nil
}

// Wait blocks until background runs have returned.
func (r *runs) Wait() {
	r.wg.Wait()
}
