// Mount Modeler
// Keeps a 10micron mount's state current, manages its alignment model and
// runs model builds. Serves the REST API, websocket stream and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/mount-modeler/internal/db"
	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/internal/observability"
	"github.com/unklstewy/mount-modeler/internal/server"
	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/alpaca"
	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/coordinates"
	"github.com/unklstewy/mount-modeler/pkg/devices"
	"github.com/unklstewy/mount-modeler/pkg/imaging"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
	"github.com/unklstewy/mount-modeler/pkg/messages"
	"github.com/unklstewy/mount-modeler/pkg/modeling"
	"github.com/unklstewy/mount-modeler/pkg/mount"
	"github.com/unklstewy/mount-modeler/pkg/points"
	"github.com/unklstewy/mount-modeler/pkg/solver"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	planName   = flag.String("plan", "", "Run one modeling plan and exit (base, grid, dense, normal, dso, timechange, hysterese, file)")
	modeName   = flag.String("mode", "", "Modeling mode for -plan (refine, sync, analyse)")
	pointFile  = flag.String("points", "", "Point list for -plan file")
)

// connectWait bounds how long a -plan run waits for the mount.
const connectWait = time.Minute

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg := logger.Get(cfg.Log.Level)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Errorw("mount modeler stopped", "error", err)
		os.Exit(1)
	}
	lg.Infow("mount modeler stopped")
}

// storage is the persistence chosen by store.driver.
type storage struct {
	store  devices.PersistentStore
	slots  server.Slots
	health func(ctx context.Context) bool
	close  func()
}

func openStorage(ctx context.Context, cfg config.StoreConfig, lg *logger.Logger) (storage, error) {
	if cfg.Driver == "file" {
		fs, err := measurement.NewFileStore(cfg.Path)
		if err != nil {
			return storage{}, err
		}
		return storage{store: fs, close: func() {}}, nil
	}

	database, err := db.ReconnectWithRetry(ctx, cfg, 5, time.Second, lg)
	if err != nil {
		return storage{}, fmt.Errorf("failed to open store: %w", err)
	}
	if err := database.InitSchema(ctx); err != nil {
		database.Close()
		return storage{}, err
	}
	repo := db.NewMeasurementRepository(database)
	return storage{
		store:  repo,
		slots:  repo,
		health: func(ctx context.Context) bool { return db.HealthCheck(ctx, database) },
		close:  func() { database.Close() },
	}, nil
}

func loadMask(cfg config.HorizonConfig) (*points.Mask, error) {
	var samples []points.Sample
	if cfg.File != "" {
		var err error
		samples, err = points.LoadHorizonFile(cfg.File)
		if err != nil {
			return nil, err
		}
	}
	return points.NewMask(samples, cfg.Floor), nil
}

func run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	collector, err := observability.NewCollector(nil)
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, cfg.Store, lg)
	if err != nil {
		return err
	}
	defer st.close()
	lg.Infow("store ready", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	mask, err := loadMask(cfg.Horizon)
	if err != nil {
		return fmt.Errorf("failed to load horizon: %w", err)
	}

	hub := messages.NewHub(lg)
	sink := messages.Fanout{messages.NewConsoleSink(os.Stdout), messages.NewLogSink(lg), hub}

	transform := coordinates.NewTransform(coordinates.Geographic{
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
		Altitude:  cfg.Site.Elevation,
	})

	link := mount.NewTransport(cfg.Mount.Host, cfg.Mount.Port, cfg.Mount.Timeout(), lg)
	link.SetMetrics(collector)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var env devices.EnvironmentSensor
	if cfg.Environment.Enabled {
		conditions := alpaca.NewObservingConditions(cfg.Environment, lg)
		env = conditions
		g.Go(func() error {
			if err := conditions.Run(ctx, cfg.Environment.PollInterval()); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	var dome devices.Dome
	if cfg.Dome.Enabled {
		d := alpaca.NewDome(cfg.Dome)
		if err := d.Connect(ctx); err != nil {
			lg.Warnw("dome not connected, modeling without dome", "error", err)
		} else {
			dome = d
			defer func() { _ = d.Disconnect(context.Background()) }()
		}
	}

	var imager devices.Imager
	if cfg.Imager.Command != "" {
		im, err := imaging.NewExecImager(cfg.Imager, lg)
		if err != nil {
			return err
		}
		imager = im
	}

	manager := alignment.NewManager(link, transform, alignment.Options{
		Store:           st.store,
		Sink:            sink,
		Logger:          lg,
		MeasurementSlot: cfg.Mount.MeasurementSlot,
	})
	dispatcher := mount.NewDispatcher(link, transform, mount.Options{
		Tick:      cfg.Mount.Tick(),
		QueueSize: cfg.Mount.QueueSize,
		Policy: mount.RefractionPolicy{
			WhenNotTracking:  cfg.Refraction.WhenNotTracking,
			DuringIdleCamera: cfg.Refraction.DuringIdleCamera,
		},
		Models:      manager,
		Environment: env,
		Imager:      imager,
		Sink:        sink,
		Metrics:     collector,
		Logger:      lg,
	})
	manager.SetStatus(dispatcher)

	dispatcher.OnSnapshot(func(s mount.Snapshot) {
		collector.ObserveSnapshot(s)
		collector.ObserveModel(manager.Model())
		hub.Publish("snapshot", s)
	})

	runner := modeling.NewRunner(modeling.Deps{
		Link:      link,
		Status:    dispatcher,
		Transform: transform,
		Models:    manager,
		Imager:    imager,
		Solver:    solver.NewASTAP(cfg.Solver, lg),
		Dome:      dome,
		Store:     st.store,
		Sink:      sink,
		Metrics:   collector,
		Logger:    lg,
	})
	runner.OnProgress(func(p modeling.Progress) {
		hub.Publish("progress", p)
	})

	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	if *planName != "" {
		g.Go(func() error {
			defer cancel()
			return runPlan(ctx, cfg, runner, dispatcher, mask, lg)
		})
		return ignoreCanceled(g.Wait())
	}

	background := &runs{ctx: ctx, cfg: cfg, runner: runner, status: dispatcher, mask: mask, log: lg}
	defer background.Wait()

	if cfg.Server.Enabled {
		srv := server.New(server.Deps{
			Mount:   dispatcher,
			Models:  manager,
			Runs:    background,
			Slots:   st.slots,
			Health:  st.health,
			Metrics: collector.Handler(),
			Stream:  hub,
			Logger:  lg,
		})
		addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
		// no write timeout: command requests wait for the mount
		httpServer := &http.Server{
			Addr:        addr,
			Handler:     srv,
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		}

		g.Go(func() error {
			lg.Infow("http server listening", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	return ignoreCanceled(g.Wait())
}

// runPlan runs one plan from the command line once the mount is connected.
func runPlan(ctx context.Context, cfg *config.Config, runner *modeling.Runner, status snapshotter, mask *points.Mask, lg *logger.Logger) error {
	snap, err := waitConnected(ctx, status, connectWait)
	if err != nil {
		return err
	}
	opts, err := runOptions(cfg.Modeling, *modeName)
	if err != nil {
		return err
	}
	plan, err := buildPlan(cfg, server.RunRequest{Plan: *planName, File: *pointFile}, opts.Mode, snap, mask)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return errors.New("no points left after horizon and limits")
	}

	res, err := runner.Run(ctx, plan, opts)
	if err != nil {
		return err
	}
	lg.Infow("modeling run finished",
		"run_id", res.RunID,
		"solved", res.Progress.Solved,
		"processed", res.Progress.Processed,
		"points", len(res.Measurements),
	)
	return nil
}

// waitConnected polls the snapshot until the mount is connected.
func waitConnected(ctx context.Context, status snapshotter, timeout time.Duration) (mount.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if snap := status.Snapshot(); snap.Connected {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return mount.Snapshot{}, fmt.Errorf("mount not connected: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
