package alignment

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
	"github.com/unklstewy/mount-modeler/pkg/devices"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
	"github.com/unklstewy/mount-modeler/pkg/mount"
	"github.com/unklstewy/mount-modeler/pkg/mount/mounttest"
)

type fixedStatus struct {
	snap mount.Snapshot
}

func (f fixedStatus) Snapshot() mount.Snapshot { return f.snap }

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSink) Post(level devices.Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, level.String()+": "+text)
}

func (r *recordingSink) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

// scenarioStars are five stars with the error magnitudes {5, 1, 2, 0.5, 3}.
func scenarioStars() []mounttest.Star {
	return []mounttest.Star{
		{HourAngle: -2, Dec: 45, ErrorRMS: 5.0, ErrorAngle: 0},
		{HourAngle: -1, Dec: 30, ErrorRMS: 1.0, ErrorAngle: 90},
		{HourAngle: 0.5, Dec: 60, ErrorRMS: 2.0, ErrorAngle: 180},
		{HourAngle: 1.5, Dec: 10, ErrorRMS: 0.5, ErrorAngle: 270},
		{HourAngle: 3, Dec: -5, ErrorRMS: 3.0, ErrorAngle: 45},
	}
}

type fixture struct {
	mount   *mounttest.Mount
	manager *Manager
	store   *measurement.FileStore
	sink    *recordingSink
}

func newFixture(t *testing.T, stars ...mounttest.Star) *fixture {
	t.Helper()
	store, err := measurement.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	m := mounttest.New(stars...)
	sink := &recordingSink{}
	tr := coordinates.NewTransform(coordinates.Geographic{Latitude: 49, Longitude: 11.5, Altitude: 500})
	mgr := NewManager(m, tr, Options{
		Store: store,
		Sink:  sink,
		Status: fixedStatus{snap: mount.Snapshot{
			Connected:         true,
			LocalSiderealTime: 12,
			JulianDate:        2460000.5,
			FirmwareVersion:   30102,
		}},
	})
	return &fixture{mount: m, manager: mgr, store: store, sink: sink}
}

func TestColdStartReconstructsMeasurements(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	f.mount.Info = "10.0,45.0,3.0,0,0.5,0.5,0.5,8,2.5#"

	if err := f.manager.Startup(context.Background()); err != nil {
		t.Fatalf("Startup: %v", err)
	}

	model := f.manager.Model()
	if model.NumberStars != 5 || model.RMS != 2.5 || model.Terms != 8 {
		t.Errorf("model header = %+v", model)
	}
	if model.PolarError != 3.0*3600 {
		t.Errorf("polar error = %f", model.PolarError)
	}

	// exactly one getalp per star, in order
	var getalp []string
	for _, c := range f.mount.Sent() {
		if strings.HasPrefix(c, "getalp") {
			getalp = append(getalp, c)
		}
	}
	if want := []string{"getalp1", "getalp2", "getalp3", "getalp4", "getalp5"}; !reflect.DeepEqual(getalp, want) {
		t.Errorf("getalp sequence = %v", getalp)
	}

	points := f.manager.Measurements()
	if len(points) != 5 {
		t.Fatalf("reconstructed %d measurements, want 5", len(points))
	}
	for i, want := range []float64{5.0, 1.0, 2.0, 0.5, 3.0} {
		if math.Abs(points[i].ModelError-want) > 1e-9 {
			t.Errorf("point %d modelError = %f, want %f", i+1, points[i].ModelError, want)
		}
		if points[i].Index != i+1 {
			t.Errorf("point %d index = %d", i+1, points[i].Index)
		}
	}
	if !Synchronized(model, points) {
		t.Error("measurements should be synchronized after reconstruction")
	}

	stored, err := f.store.LoadMeasurements(context.Background(), "ACTUAL")
	if err != nil || len(stored) != 5 {
		t.Errorf("stored measurements = %d, %v", len(stored), err)
	}
}

func TestDownloadConvertsPoints(t *testing.T) {
	f := newFixture(t, mounttest.Star{HourAngle: -2, Dec: 45, ErrorRMS: 1.5, ErrorAngle: 30})

	model, err := f.manager.Download(context.Background())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	p := model.Points[0]
	if p.Index != 1 || math.Abs(p.HourAngle-22) > 1e-9 {
		t.Errorf("index/HA = %d, %f", p.Index, p.HourAngle)
	}
	// RA = LST - HA
	if math.Abs(p.RAJNow-14) > 1e-9 || p.DecJNow != 45 {
		t.Errorf("JNow = %f, %f", p.RAJNow, p.DecJNow)
	}

	tr := coordinates.NewTransform(coordinates.Geographic{Latitude: 49, Longitude: 11.5, Altitude: 500})
	want := tr.JNowToJ2000(coordinates.EquatorialCoordinates{RightAscension: 14, Declination: 45}, 2460000.5)
	if math.Abs(p.RAJ2000-want.RightAscension) > 1e-9 || math.Abs(p.DecJ2000-want.Declination) > 1e-9 {
		t.Errorf("J2000 = %f, %f", p.RAJ2000, p.DecJ2000)
	}

	az, alt := coordinates.HADecToAzAlt(22, 45, 49)
	if math.Abs(p.Azimuth-az) > 1e-9 || math.Abs(p.Altitude-alt) > 1e-9 {
		t.Errorf("az/alt = %f, %f", p.Azimuth, p.Altitude)
	}
}

func TestDownloadEdgeCases(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		f := newFixture(t)
		model, err := f.manager.Download(context.Background())
		if err != nil || model.NumberStars != 0 || len(model.Points) != 0 {
			t.Errorf("empty model = %+v, %v", model, err)
		}
		if f.manager.Simulation() {
			t.Error("zero stars is not simulation")
		}
	})

	t.Run("header with E fields", func(t *testing.T) {
		f := newFixture(t, scenarioStars()...)
		f.mount.Info = "E,E,E,E,E,E,E,5,E"
		model, err := f.manager.Download(context.Background())
		if err != nil || model.NumberStars != 5 || model.RMS != 0 || model.Terms != 5 {
			t.Errorf("model = %+v, %v", model, err)
		}
	})

	t.Run("bad header keeps points", func(t *testing.T) {
		f := newFixture(t, scenarioStars()...)
		f.mount.Info = "1,2,3"
		model, err := f.manager.Download(context.Background())
		if err != nil || model.NumberStars != 5 || len(model.Points) != 5 || model.RMS != 0 {
			t.Errorf("model = %+v, %v", model, err)
		}
	})

	t.Run("old firmware skips getain", func(t *testing.T) {
		f := newFixture(t, scenarioStars()...)
		f.manager.SetStatus(fixedStatus{snap: mount.Snapshot{Connected: true, LocalSiderealTime: 12, JulianDate: 2460000.5, FirmwareVersion: 21409}})
		model, err := f.manager.Download(context.Background())
		if err != nil || model.NumberStars != 5 {
			t.Fatalf("model = %+v, %v", model, err)
		}
		if len(f.mount.SentWithPrefix("getain")) != 0 {
			t.Error("getain sent to firmware 2.14")
		}
	})
}

func TestRunTargetRMSStopsAtMinimum(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	f.mount.Info = "10.0,45.0,3.0,0,0.5,0.5,0.5,8,2.5#"
	ctx := context.Background()
	if err := f.manager.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}

	err := f.manager.RunTargetRMS(ctx, 1.5)
	if !errors.Is(err, ErrTargetNotReached) {
		t.Fatalf("expected ErrTargetNotReached, got %v", err)
	}

	deleted := f.mount.SentWithPrefix("delalst")
	if want := []string{"delalst1", "delalst4"}; !reflect.DeepEqual(deleted, want) {
		t.Errorf("deletions = %v, want %v", deleted, want)
	}
	if n := f.mount.StarCount(); n != MinStars {
		t.Errorf("stars left = %d, want %d", n, MinStars)
	}

	// the remaining measurements follow the remaining stars
	points := f.manager.Measurements()
	if len(points) != 3 {
		t.Fatalf("measurements = %d, want 3", len(points))
	}
	for i, want := range []float64{1.0, 2.0, 0.5} {
		if math.Abs(points[i].ModelError-want) > 1e-9 || points[i].Index != i+1 {
			t.Errorf("point %d = %f (index %d), want %f", i, points[i].ModelError, points[i].Index, want)
		}
	}
	if !f.sink.contains("not reached") {
		t.Error("missing target not reached message")
	}
}

func TestRunTargetRMSReachesTarget(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	ctx := context.Background()

	if err := f.manager.RunTargetRMS(ctx, 1.5); err != nil {
		t.Fatalf("RunTargetRMS: %v", err)
	}
	model := f.manager.Model()
	if model.NumberStars > MinStars && model.RMS > 1.5 {
		t.Errorf("optimization stopped early: %d stars, RMS %f", model.NumberStars, model.RMS)
	}

	f.mount.ResetSent()
	if err := f.manager.RunTargetRMS(ctx, 10); err != nil {
		t.Fatalf("RunTargetRMS above RMS: %v", err)
	}
	if len(f.mount.SentWithPrefix("delalst")) != 0 {
		t.Error("stars deleted although the model is within target")
	}
}

// cancellingLink cancels the manager once it sees the first deletion.
type cancellingLink struct {
	*mounttest.Mount
	manager *Manager
}

func (c *cancellingLink) SendString(cmd string) (string, error) {
	if strings.HasPrefix(cmd, "delalst") {
		c.manager.Cancel()
	}
	return c.Mount.SendString(cmd)
}

func TestRunTargetRMSCancel(t *testing.T) {
	m := mounttest.New(scenarioStars()...)
	m.Info = "10.0,45.0,3.0,0,0.5,0.5,0.5,8,2.5#"
	link := &cancellingLink{Mount: m}
	tr := coordinates.NewTransform(coordinates.Geographic{Latitude: 49})
	mgr := NewManager(link, tr, Options{})
	link.manager = mgr

	err := mgr.RunTargetRMS(context.Background(), 0.1)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if got := len(m.SentWithPrefix("delalst")); got != 1 {
		t.Errorf("deletions = %d, want 1", got)
	}
}

func TestDeleteWorstPoint(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	if err := f.manager.DeleteWorstPoint(context.Background()); err != nil {
		t.Fatalf("DeleteWorstPoint: %v", err)
	}
	if got := f.mount.SentWithPrefix("delalst"); len(got) != 1 || got[0] != "delalst1" {
		t.Errorf("deletions = %v", got)
	}
	if f.manager.Model().NumberStars != 4 {
		t.Errorf("stars = %d, want 4", f.manager.Model().NumberStars)
	}

	empty := newFixture(t)
	if err := empty.manager.DeleteWorstPoint(context.Background()); err == nil {
		t.Error("expected error on empty model")
	}
}

func TestSimulationShortCircuits(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	f.mount.Simulation = true
	ctx := context.Background()

	if err := f.manager.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if !f.manager.Simulation() {
		t.Fatal("simulation not detected")
	}

	f.mount.ResetSent()
	ops := map[string]func() error{
		"save":   func() error { return f.manager.SaveSlot(ctx, "BASE") },
		"load":   func() error { return f.manager.LoadSlot(ctx, "BASE") },
		"delete": func() error { return f.manager.DeleteSlot(ctx, "BASE") },
		"replay": func() error { return f.manager.ReplaySlot(ctx, "BASE") },
		"clear":  func() error { return f.manager.Clear(ctx) },
		"begin":  func() error { return f.manager.BeginBatch(ctx) },
		"target": func() error { return f.manager.RunTargetRMS(ctx, 1) },
		"add": func() error {
			_, err := f.manager.AddStar(ctx, Star{Pierside: "E"})
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrSimulation) {
				t.Errorf("expected ErrSimulation, got %v", err)
			}
		})
	}
	if sent := f.mount.Sent(); len(sent) != 0 {
		t.Errorf("commands sent in simulation: %v", sent)
	}
	if !f.sink.contains("simulation") {
		t.Error("missing simulation message")
	}
}

func TestSaveLoadRestoresModel(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	ctx := context.Background()
	if err := f.manager.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	saved := f.manager.Model()

	if err := f.manager.SaveSlot(ctx, "base"); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	if got := f.mount.SentWithPrefix("model"); !reflect.DeepEqual(got, []string{"modeldel0BASE", "modelsv0BASE"}) {
		t.Errorf("save commands = %v", got)
	}

	if err := f.manager.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if f.mount.StarCount() != 0 || len(f.manager.Measurements()) != 0 {
		t.Fatal("clear left stars or measurements behind")
	}

	if err := f.manager.LoadSlot(ctx, "BASE.dat"); err != nil {
		t.Fatalf("LoadSlot: %v", err)
	}
	if got := f.manager.Model(); !reflect.DeepEqual(got, saved) {
		t.Errorf("loaded model differs:\n got %+v\nwant %+v", got, saved)
	}
	if points := f.manager.Measurements(); len(points) != 5 || !Synchronized(saved, points) {
		t.Errorf("measurements not restored: %d", len(points))
	}
}

func TestLoadEmptySlot(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	err := f.manager.LoadSlot(context.Background(), "DSO1")
	if !errors.Is(err, ErrSlotEmpty) {
		t.Fatalf("expected ErrSlotEmpty, got %v", err)
	}
	if !f.sink.contains("could not be loaded") {
		t.Error("missing warning")
	}

	if err := f.manager.SaveSlot(context.Background(), "nowhere"); err == nil {
		t.Error("expected error for unknown slot")
	}
}

func TestSaveSlotReconciles(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	ctx := context.Background()
	if _, err := f.manager.Download(ctx); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(f.manager.Measurements()) != 0 {
		t.Fatal("download alone should not create measurements")
	}

	if err := f.manager.SaveSlot(ctx, "DSO1"); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	stored, err := f.store.LoadMeasurements(ctx, "DSO1")
	if err != nil || len(stored) != 5 {
		t.Fatalf("stored measurements = %d, %v", len(stored), err)
	}
	for i, want := range []float64{5.0, 1.0, 2.0, 0.5, 3.0} {
		if math.Abs(stored[i].ModelError-want) > 1e-9 {
			t.Errorf("point %d modelError = %f, want %f", i+1, stored[i].ModelError, want)
		}
	}
}

func TestDeleteSlot(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	ctx := context.Background()
	if err := f.manager.SaveSlot(ctx, "DSO2"); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	if _, ok := f.mount.Slots["DSO2"]; !ok {
		t.Fatal("slot not saved")
	}

	if err := f.manager.DeleteSlot(ctx, "dso2.dat"); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	if _, ok := f.mount.Slots["DSO2"]; ok {
		t.Error("slot still present after delete")
	}
	if !f.sink.contains("DSO2 deleted") {
		t.Error("missing delete message")
	}
	if err := f.manager.DeleteSlot(ctx, "nowhere"); err == nil {
		t.Error("expected error for unknown slot")
	}
}

func TestReplaySlot(t *testing.T) {
	f := newFixture(t, scenarioStars()[:1]...)
	ctx := context.Background()

	points := make([]measurement.Point, 3)
	for i := range points {
		points[i] = measurement.Point{
			Index:             i + 1,
			RAJNow:            float64(i + 2),
			DecJNow:           15 * float64(i),
			Pierside:          "W",
			RAJNowSolved:      float64(i+2) + 0.002,
			DecJNowSolved:     15*float64(i) + 0.02,
			LocalSiderealTime: 12,
		}
	}
	if err := f.store.SaveMeasurements(ctx, "REFINE", points); err != nil {
		t.Fatalf("SaveMeasurements: %v", err)
	}
	if _, err := f.manager.Download(ctx); err != nil {
		t.Fatalf("Download: %v", err)
	}
	f.mount.ResetSent()

	if err := f.manager.ReplaySlot(ctx, "REFINE"); err != nil {
		t.Fatalf("ReplaySlot: %v", err)
	}
	if got := f.mount.SentWithPrefix("newalig"); len(got) != 1 {
		t.Errorf("newalig sent %d times, want 1", len(got))
	}
	if got := len(f.mount.SentWithPrefix("newalpt")); got != 3 {
		t.Errorf("newalpt sent %d times, want 3", got)
	}
	if f.mount.StarCount() != 3 {
		t.Errorf("stars = %d, want 3", f.mount.StarCount())
	}
	if !f.sink.contains("replayed from REFINE: 3 of 3") {
		t.Error("missing replay message")
	}

	if err := f.manager.ReplaySlot(ctx, "DSO1"); !errors.Is(err, devices.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an empty slot, got %v", err)
	}
	if err := f.manager.ReplaySlot(ctx, "nowhere"); err == nil {
		t.Error("expected error for unknown slot")
	}

	bare := NewManager(mounttest.New(), coordinates.NewTransform(coordinates.Geographic{Latitude: 49}), Options{
		Status: fixedStatus{snap: mount.Snapshot{Connected: true}},
	})
	if err := bare.ReplaySlot(ctx, "REFINE"); !errors.Is(err, devices.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without a store, got %v", err)
	}
}

func TestProgramBatch(t *testing.T) {
	original := scenarioStars()[:2]
	f := newFixture(t, original...)
	ctx := context.Background()

	points := make([]measurement.Point, 4)
	for i := range points {
		points[i] = measurement.Point{
			RAJNow:            float64(i + 1),
			DecJNow:           10 * float64(i),
			Pierside:          "W",
			RAJNowSolved:      float64(i+1) + 0.001,
			DecJNowSolved:     10*float64(i) + 0.01,
			LocalSiderealTime: 12,
		}
	}
	points[2].Pierside = "?" // refused locally

	if _, err := f.manager.Download(ctx); err != nil {
		t.Fatalf("Download: %v", err)
	}
	f.mount.ResetSent()
	if err := f.manager.ProgramBatch(ctx, points); err != nil {
		t.Fatalf("ProgramBatch: %v", err)
	}

	sent := f.mount.Sent()
	order := []string{"modeldel0BACKUP", "modelsv0BACKUP", "newalig"}
	for i, want := range order {
		if sent[i] != want {
			t.Errorf("command %d = %q, want %q", i, sent[i], want)
		}
	}
	if got := len(f.mount.SentWithPrefix("newalpt")); got != 3 {
		t.Errorf("newalpt sent %d times, want 3", got)
	}
	if f.mount.StarCount() != 3 {
		t.Errorf("stars = %d, want 3", f.mount.StarCount())
	}
	if backup := f.mount.Slots["BACKUP"]; len(backup) != 2 {
		t.Errorf("backup holds %d stars, want 2", len(backup))
	}
	if got := f.manager.Measurements(); len(got) != 3 || got[2].Index != 3 {
		t.Errorf("measurements = %d", len(got))
	}
}

func TestEndBatchRejected(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	f.mount.RejectEnd = true
	ctx := context.Background()

	if err := f.manager.BeginBatch(ctx); err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if _, err := f.manager.AddStar(ctx, Star{RAJNow: 1, Pierside: "E"}); err != nil {
		t.Fatalf("AddStar: %v", err)
	}
	if err := f.manager.EndBatch(ctx); !errors.Is(err, ErrModelRejected) {
		t.Fatalf("expected ErrModelRejected, got %v", err)
	}
	if f.mount.StarCount() != 5 {
		t.Errorf("previous model lost: %d stars", f.mount.StarCount())
	}
	if !f.sink.contains("rejected") {
		t.Error("missing rejection message")
	}
}

func TestStarCommand(t *testing.T) {
	s := Star{RAJNow: 1.5, DecJNow: 20, Pierside: "E", RAJNowSolved: 1.51, DecJNowSolved: 20.01, LocalSiderealTime: 3}
	cmd, err := s.command()
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	want := "newalpt01:30:00.0,+20*00:00.0,E,01:30:36.0,+20*00:36.0,03:00:00.0"
	if cmd != want {
		t.Errorf("command = %q, want %q", cmd, want)
	}

	if _, err := (Star{Pierside: "X"}).command(); err == nil {
		t.Error("expected error for bad pier side")
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, scenarioStars()...)
	ctx := context.Background()
	if _, err := f.manager.Download(ctx); err != nil {
		t.Fatalf("Download: %v", err)
	}

	t.Run("equal counts rewrite residuals", func(t *testing.T) {
		points := make([]measurement.Point, 5)
		for i := range points {
			points[i].RAError, points[i].DecError, points[i].ModelError = 99, 99, 99
		}
		f.manager.SetMeasurements(points)

		if got := f.manager.Reconcile(ctx); got != ReconcileUpdated {
			t.Fatalf("Reconcile = %v", got)
		}
		for i, p := range f.manager.Measurements() {
			star := scenarioStars()[i]
			a := star.ErrorAngle * math.Pi / 180
			if math.Abs(p.RAError-star.ErrorRMS*math.Sin(a)) > 1e-9 ||
				math.Abs(p.DecError-star.ErrorRMS*math.Cos(a)) > 1e-9 ||
				math.Abs(p.ModelError-star.ErrorRMS) > 1e-9 {
				t.Errorf("point %d = %+v", i+1, p)
			}
		}
	})

	t.Run("mismatch leaves both sides", func(t *testing.T) {
		f.manager.SetMeasurements(make([]measurement.Point, 2))
		if got := f.manager.Reconcile(ctx); got != ReconcileMismatch {
			t.Fatalf("Reconcile = %v", got)
		}
		if len(f.manager.Measurements()) != 2 || f.manager.Model().NumberStars != 5 {
			t.Error("mismatch changed data")
		}
		if !f.sink.contains("do not match") {
			t.Error("missing mismatch message")
		}
	})
}

func TestSynchronized(t *testing.T) {
	model := Model{NumberStars: 2, Points: []Point{
		{ErrorRMS: 2, ErrorAngle: 90},
		{ErrorRMS: 1, ErrorAngle: 359.8},
	}}
	points := make([]measurement.Point, 2)
	points[0].ApplyModelError(2, 90)
	points[1].ApplyModelError(1, 0.1)

	if !Synchronized(model, points) {
		t.Error("matching sets reported out of sync")
	}
	points[0].ApplyModelError(2, 120)
	if Synchronized(model, points) {
		t.Error("different angle reported in sync")
	}
	if Synchronized(model, points[:1]) {
		t.Error("different counts reported in sync")
	}
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in      string
		want    Slot
		wantErr bool
	}{
		{"BACKUP", SlotBackup, false},
		{"dso2.dat", SlotDSO2, false},
		{" refine ", SlotRefine, false},
		{"Simple", SlotSimple, false},
		{"other", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSlot(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseSlot(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestWorst(t *testing.T) {
	m := Model{Points: []Point{{ErrorRMS: 1}, {ErrorRMS: 3}, {ErrorRMS: 3}, {ErrorRMS: 2}}}
	if i, ok := m.Worst(); !ok || i != 1 {
		t.Errorf("Worst = %d, %v, want first of the ties", i, ok)
	}
	if _, ok := (Model{}).Worst(); ok {
		t.Error("empty model has no worst point")
	}
}
