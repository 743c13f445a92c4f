package mount

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/coordinates"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

const (
	// TickInterval is the dispatcher's base period.
	TickInterval = 200 * time.Millisecond

	// Cadences in ticks.
	FastEvery   = 2
	MediumEvery = 15
	SlowEvery   = 150

	// DefaultQueueSize bounds the user command queue.
	DefaultQueueSize = 32
)

// ErrQueueFull is returned by Enqueue when the command queue is full.
var ErrQueueFull = errors.New("mount command queue full")

var (
	onceCommands = []string{"Gev", "Gg", "Gt", "GVD", "GVN", "GVP", "GVT", "GVZ"}
	fastCommands = []string{"GS", "Ginfo", "Gmte", "Glmt", "Glms"}
	slowCommands = []string{"GRTMP", "GRPRS", "GTMP1", "GREF", "Guaf", "Gdat", "Gh", "Go"}
)

// ModelService manages the alignment model on behalf of the dispatcher.
type ModelService interface {
	// Startup downloads the model and reconciles it with the stored
	// measurements. Called once per connection.
	Startup(ctx context.Context) error
	Refresh(ctx context.Context) error
	Clear(ctx context.Context) error
	RunTargetRMS(ctx context.Context, target float64) error
	Cancel()
	DeleteWorstPoint(ctx context.Context) error
	SaveSlot(ctx context.Context, slot string) error
	LoadSlot(ctx context.Context, slot string) error
	DeleteSlot(ctx context.Context, slot string) error

	// ReplaySlot programs the stored measurements of slot as a new model.
	ReplaySlot(ctx context.Context, slot string) error
}

// Options configures a Dispatcher. Every field is optional.
type Options struct {
	Tick      time.Duration
	QueueSize int
	Policy    RefractionPolicy

	Models      ModelService
	Environment devices.EnvironmentSensor
	Imager      devices.Imager
	Sink        devices.MessageSink
	Metrics     Metrics
	Logger      *logger.Logger
}

// Dispatcher polls the mount on fast, medium and slow cadences, executes
// queued user commands and keeps the Snapshot current. One goroutine runs
// Run; every other method is safe for concurrent use.
type Dispatcher struct {
	link      Link
	transform *coordinates.Transform
	models    ModelService
	env       devices.EnvironmentSensor
	imager    devices.Imager
	sink      devices.MessageSink
	metrics   Metrics
	log       *logger.Logger

	tick  time.Duration
	queue chan Command
	retry *rate.Limiter

	snapshots snapshotStore

	policyMu sync.RWMutex
	policy   RefractionPolicy

	listenersMu    sync.RWMutex
	onSnapshot     []func(Snapshot)
	onTrackPreview []func(Snapshot)

	// owned by the Run goroutine
	ticks        int64
	tasks        taskQueue
	wasConnected bool
	hasUTCTable  bool
}

// NewDispatcher creates a dispatcher driving link. The transform receives
// the site and weather reported by the mount.
func NewDispatcher(link Link, transform *coordinates.Transform, opts Options) *Dispatcher {
	if opts.Tick <= 0 {
		opts.Tick = TickInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Sink == nil {
		opts.Sink = devices.Discard
	}

	d := &Dispatcher{
		link:      link,
		transform: transform,
		models:    opts.Models,
		env:       opts.Environment,
		imager:    opts.Imager,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		log:       logger.OrNop(opts.Logger).Component("dispatcher"),
		tick:      opts.Tick,
		queue:     make(chan Command, opts.QueueSize),
		retry:     rate.NewLimiter(rate.Every(time.Second), 1),
		policy:    opts.Policy,
	}

	d.tasks = taskQueue{
		{name: "fast", every: FastEvery, due: 1, run: d.fast},
		{name: "medium", every: MediumEvery, due: 1, run: d.medium},
		{name: "slow", every: SlowEvery, due: 1, run: d.slow},
	}
	heap.Init(&d.tasks)
	return d
}

// Run drives the dispatcher until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	d.log.Infow("dispatcher started", "tick", d.tick)
	for {
		select {
		case <-ctx.Done():
			d.log.Infow("dispatcher stopped")
			return nil
		case <-ticker.C:
			d.step(ctx)
		}
	}
}

// step runs one tick: reconnect if needed, then either drain the command
// queue or run the cadences that are due.
func (d *Dispatcher) step(ctx context.Context) {
	d.ticks++
	d.ensureConnected(ctx)

	if d.drainCommands(ctx) {
		return
	}

	for d.tasks.Len() > 0 && d.tasks[0].due <= d.ticks {
		t := heap.Pop(&d.tasks).(*task)

		start := time.Now()
		t.run(ctx)
		d.metrics.CycleCompleted(t.name, time.Since(start))

		t.due += t.every
		if t.due <= d.ticks {
			t.due = d.ticks + t.every
		}
		heap.Push(&d.tasks, t)
	}
}

func (d *Dispatcher) ensureConnected(ctx context.Context) {
	connected := d.link.Connected()
	if !connected && d.retry.Allow() {
		if err := d.link.Connect(ctx); err != nil {
			d.log.Debugw("connect failed", "error", err)
		} else {
			connected = true
		}
	}

	switch {
	case connected && !d.wasConnected:
		d.wasConnected = true
		d.snapshots.update(func(s *Snapshot) { s.Connected = true })
		devices.Postf(d.sink, devices.LevelInfo, "Mount connected")
		d.once(ctx)
	case !connected && d.wasConnected:
		d.wasConnected = false
		d.snapshots.update(func(s *Snapshot) { s.Connected = false })
		devices.Postf(d.sink, devices.LevelWarning, "Mount disconnected")
	}
}

// once reads site and firmware data and brings up the alignment model.
func (d *Dispatcher) once(ctx context.Context) {
	if err := d.link.SendBlind("U2"); err != nil {
		d.log.Warnw("high precision mode failed", "error", err)
	}

	replies, err := d.link.SendBatch(onceCommands, len(onceCommands))
	if err != nil {
		d.log.Warnw("site query failed", "error", err)
		return
	}

	var site coordinates.Geographic
	if v, err := parseNumber(replies[0]); err == nil {
		site.Altitude = v
	}
	// the mount reports longitude east negative
	if v, err := coordinates.ParseSexagesimal(replies[1], ":"); err == nil {
		site.Longitude = -v
	}
	if v, err := coordinates.ParseSexagesimal(replies[2], ":"); err == nil {
		site.Latitude = v
	}
	d.transform.SetSite(site)

	encoded, hasUTC, err := firmwareVersion(replies[4])
	if err != nil {
		d.log.Debugw("firmware number not parsed", "reply", replies[4], "error", err)
	}
	d.hasUTCTable = hasUTC

	d.snapshots.update(func(s *Snapshot) {
		s.SiteLatitude = site.Latitude
		s.SiteLongitude = site.Longitude
		s.SiteHeight = site.Altitude
		s.FirmwareDate = replies[3]
		s.FirmwareNumber = replies[4]
		s.FirmwareVersion = encoded
		s.ProductName = replies[5]
		s.FirmwareTime = replies[6]
		s.HardwareVersion = replies[7]
	})
	d.log.Infow("mount identified", "product", replies[5], "firmware", replies[4],
		"lat", site.Latitude, "lon", site.Longitude, "height", site.Altitude)

	// the model download converts with the current LST
	d.fast(ctx)
	if d.models != nil {
		if err := d.models.Startup(ctx); err != nil {
			d.log.Warnw("alignment model startup failed", "error", err)
		}
	}
}

// fast updates pointing, status and meridian timing.
func (d *Dispatcher) fast(_ context.Context) {
	replies, err := d.link.SendBatch(fastCommands, len(fastCommands))
	if err != nil {
		d.log.Debugw("fast poll failed", "error", err)
		return
	}

	g, err := parseGinfo(replies[1])
	if err != nil {
		d.metrics.ReplyArityMismatch("Ginfo")
		d.log.Warnw("Ginfo not decoded, keeping previous snapshot", "reply", replies[1], "error", err)
		return
	}

	jd := g.julianDate
	if jd <= 0 {
		jd = coordinates.JulianDate(time.Now())
	}
	j2000 := d.transform.JNowToJ2000(coordinates.EquatorialCoordinates{
		RightAscension: g.ra,
		Declination:    g.dec,
	}, jd)

	lst, lstErr := coordinates.ParseSexagesimal(replies[0], ":")
	flip, flipErr := parseNumber(replies[2])
	track, trackErr := parseNumber(replies[3])
	slew, slewErr := parseNumber(replies[4])

	snap := d.snapshots.update(func(s *Snapshot) {
		s.Connected = d.link.Connected()
		s.Simulation = !s.Connected
		s.RAJNow, s.DecJNow = g.ra, g.dec
		s.RAJ2000, s.DecJ2000 = j2000.RightAscension, j2000.Declination
		s.Azimuth, s.Altitude = g.az, g.alt
		s.Pierside = g.pierside
		s.TrackingState = g.state
		s.Slewing = g.slewing
		s.JulianDate = jd
		if lstErr == nil {
			s.LocalSiderealTime = lst
		}
		if flipErr == nil {
			s.TimeToFlip = flip
		}
		if trackErr == nil {
			s.MeridianLimitTrack = track
		}
		if slewErr == nil {
			s.MeridianLimitSlew = slew
		}
		s.TimeToMeridian = s.TimeToFlip - s.MeridianLimitTrack/360.0*24.0*60.0
		s.UpdatedAt = time.Now()
	})

	d.notify(d.snapshotListeners(), snap)
}

// medium reads the slew rate, emits the track preview and may push
// refraction data.
func (d *Dispatcher) medium(_ context.Context) {
	reply, err := d.link.SendString("GMs")
	if err == nil {
		if v, err := parseNumber(reply); err == nil {
			d.snapshots.update(func(s *Snapshot) { s.SlewRate = v })
		}
	}

	d.listenersMu.RLock()
	preview := append([]func(Snapshot){}, d.onTrackPreview...)
	d.listenersMu.RUnlock()
	d.notify(preview, d.snapshots.get())

	d.maybePushRefraction()
}

// slow reads refraction, limits and UTC table state.
func (d *Dispatcher) slow(_ context.Context) {
	replies, err := d.link.SendBatch(slowCommands, len(slowCommands))
	if err != nil {
		d.log.Debugw("slow poll failed", "error", err)
		return
	}

	temp, tempErr := parseNumber(replies[0])
	press, pressErr := parseNumber(replies[1])
	mountTemp, mountTempErr := parseNumber(replies[2])
	high, highErr := parseLimit(replies[6])
	low, lowErr := parseLimit(replies[7])

	var utc UTCDataValidity
	var utcDate string
	utcOK := false
	if d.hasUTCTable {
		if reply, err := d.link.SendString("GDUTV"); err == nil {
			utc, utcDate, err = parseUTCData(reply)
			utcOK = err == nil
		}
	}

	snap := d.snapshots.update(func(s *Snapshot) {
		if tempErr == nil {
			s.RefractionTemp = temp
		}
		if pressErr == nil {
			s.RefractionPressure = press
		}
		if mountTempErr == nil {
			s.MountTemperature = mountTemp
		}
		s.RefractionEnabled = parseFlag(replies[3])
		s.UnattendedFlip = parseFlag(replies[4])
		s.DualAxisTracking = parseFlag(replies[5])
		if highErr == nil {
			s.HorizonLimitHigh = high
		}
		if lowErr == nil {
			s.HorizonLimitLow = low
		}
		s.HorizonLimitLow, s.HorizonLimitHigh = clampLimits(s.HorizonLimitLow, s.HorizonLimitHigh)
		if utcOK {
			s.UTCDataValid = utc
			s.UTCDataExpirationDate = utcDate
		}
	})

	if PlausibleWeather(snap.RefractionTemp, snap.RefractionPressure) {
		d.transform.SetWeather(snap.RefractionTemp, snap.RefractionPressure)
	}
	d.transform.SetRefraction(snap.RefractionEnabled)
}

func clampLimits(low, high float64) (float64, float64) {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 90 {
			return 90
		}
		return v
	}
	low, high = clamp(low), clamp(high)
	if low > high {
		low = high
	}
	return low, high
}

// Enqueue adds a user command. CancelTargetRMSAlignment bypasses the queue
// so it can interrupt an optimization in progress.
func (d *Dispatcher) Enqueue(cmd Command) error {
	if cmd.Verb == CancelTargetRMSAlignment {
		if d.models != nil {
			d.models.Cancel()
		}
		reply(cmd, Result{})
		return nil
	}

	select {
	case d.queue <- cmd:
		d.metrics.QueueDepth(len(d.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// drainCommands executes everything queued and reports whether any command
// ran.
func (d *Dispatcher) drainCommands(ctx context.Context) bool {
	ran := false
	for {
		select {
		case cmd := <-d.queue:
			ran = true
			res := d.execute(ctx, cmd)
			if res.Err != nil {
				d.log.Warnw("command failed", "command", cmd.Verb.String(), "error", res.Err)
			}
			reply(cmd, res)
			d.metrics.QueueDepth(len(d.queue))
		default:
			return ran
		}
	}
}

func reply(cmd Command, res Result) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- res:
	default:
	}
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command) Result {
	switch cmd.Verb {
	case SetRefractionParameter:
		return Result{Err: d.setRefraction(cmd)}
	case Flip:
		return d.expectOne("FLIP", "Meridian flip")
	case Shutdown:
		return d.expectOne("shutdown", "Shutdown")
	case RawCommand:
		if IsBlind(cmd.Raw) {
			return Result{Err: d.link.SendBlind(cmd.Raw)}
		}
		r, err := d.link.SendString(cmd.Raw)
		return Result{Reply: r, Err: err}
	}

	if d.models == nil {
		return Result{Err: fmt.Errorf("%s: alignment model manager %w", cmd.Verb, devices.ErrUnavailable)}
	}

	switch cmd.Verb {
	case ShowAlignmentModel:
		return Result{Err: d.models.Refresh(ctx)}
	case ClearAlign:
		return Result{Err: d.models.Clear(ctx)}
	case RunTargetRMSAlignment:
		return Result{Err: d.models.RunTargetRMS(ctx, cmd.TargetRMS)}
	case DeleteWorstPoint:
		return Result{Err: d.models.DeleteWorstPoint(ctx)}
	case SaveModel:
		return Result{Err: d.models.SaveSlot(ctx, cmd.Slot)}
	case LoadModel:
		return Result{Err: d.models.LoadSlot(ctx, cmd.Slot)}
	case DeleteModel:
		return Result{Err: d.models.DeleteSlot(ctx, cmd.Slot)}
	case ReplayModel:
		return Result{Err: d.models.ReplaySlot(ctx, cmd.Slot)}
	default:
		return Result{Err: fmt.Errorf("unsupported command %s", cmd.Verb)}
	}
}

func (d *Dispatcher) expectOne(cmd, what string) Result {
	r, err := d.link.SendString(cmd)
	if err != nil {
		return Result{Err: err}
	}
	if r != "1" {
		devices.Postf(d.sink, devices.LevelWarning, "%s not accepted by mount", what)
		return Result{Reply: r, Err: fmt.Errorf("%s rejected: %q", what, r)}
	}
	devices.Postf(d.sink, devices.LevelInfo, "%s started", what)
	return Result{Reply: r}
}

// Snapshot returns a copy of the current mount state.
func (d *Dispatcher) Snapshot() Snapshot {
	return d.snapshots.get()
}

// Policy returns the refraction push policy.
func (d *Dispatcher) Policy() RefractionPolicy {
	d.policyMu.RLock()
	defer d.policyMu.RUnlock()
	return d.policy
}

// SetPolicy replaces the refraction push policy.
func (d *Dispatcher) SetPolicy(p RefractionPolicy) {
	d.policyMu.Lock()
	defer d.policyMu.Unlock()
	d.policy = p
}

// OnSnapshot registers fn to be called after every fast cycle.
func (d *Dispatcher) OnSnapshot(fn func(Snapshot)) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.onSnapshot = append(d.onSnapshot, fn)
}

// OnTrackPreview registers fn to be called on the medium cadence, for
// whoever draws the predicted path.
func (d *Dispatcher) OnTrackPreview(fn func(Snapshot)) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.onTrackPreview = append(d.onTrackPreview, fn)
}

func (d *Dispatcher) snapshotListeners() []func(Snapshot) {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	return append([]func(Snapshot){}, d.onSnapshot...)
}

func (d *Dispatcher) notify(listeners []func(Snapshot), s Snapshot) {
	for _, fn := range listeners {
		fn(s)
	}
}

// task is a cadence scheduled by due tick.
type task struct {
	name  string
	every int64
	due   int64
	run   func(context.Context)
}

// taskQueue is a min-heap on due tick; faster cadences win ties.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].every < q[j].every
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	*q = old[:n-1]
	return t
}
