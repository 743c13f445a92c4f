package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

func newCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c
}

func TestCommandCode(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{":Sr12:00:00.00#", "Sr"},
		{"Sr06:00:00.00", "Sr"},
		{"Ginfo", "Ginfo"},
		{"RT9", "RT"},
		{"newalpt12:00:00.0,+20*00:00.0,W", "newalpt"},
		{"", "unknown"},
		{"#", "unknown"},
	}
	for _, tt := range tests {
		if got := CommandCode(tt.cmd); got != tt.want {
			t.Errorf("CommandCode(%q): expected %q, got %q", tt.cmd, tt.want, got)
		}
	}
}

func TestMountMetrics(t *testing.T) {
	c := newCollector(t)

	c.CommandSent("Sr06:00:00.00", 20*time.Millisecond, nil)
	c.CommandSent("Sr07:00:00.00", 30*time.Millisecond, nil)
	c.CommandSent("GR", time.Millisecond, errors.New("timeout"))
	c.ConnectionChanged(true)
	c.QueueDepth(3)
	c.ReplyArityMismatch("Ginfo")
	c.CycleCompleted("fast", 40*time.Millisecond)

	if got := testutil.ToFloat64(c.Commands.WithLabelValues("Sr", "ok")); got != 2 {
		t.Errorf("Expected 2 Sr commands, got %v", got)
	}
	if got := testutil.ToFloat64(c.Commands.WithLabelValues("GR", "error")); got != 1 {
		t.Errorf("Expected 1 failed GR, got %v", got)
	}
	if got := testutil.ToFloat64(c.Connected); got != 1 {
		t.Errorf("Expected connected 1, got %v", got)
	}
	if got := testutil.ToFloat64(c.QueueLength); got != 3 {
		t.Errorf("Expected queue depth 3, got %v", got)
	}
	if got := testutil.ToFloat64(c.ArityMismatches.WithLabelValues("Ginfo")); got != 1 {
		t.Errorf("Expected 1 arity mismatch, got %v", got)
	}
	if n := testutil.CollectAndCount(c.CycleDuration); n != 1 {
		t.Errorf("Expected 1 cadence series, got %d", n)
	}

	c.ConnectionChanged(false)
	if got := testutil.ToFloat64(c.Connected); got != 0 {
		t.Errorf("Expected connected 0, got %v", got)
	}
}

func TestStateGauges(t *testing.T) {
	c := newCollector(t)

	c.ObserveSnapshot(mount.Snapshot{Slewing: true, TrackingState: mount.Tracking, MountTemperature: 6.5})
	if testutil.ToFloat64(c.Slewing) != 1 || testutil.ToFloat64(c.Tracking) != 1 {
		t.Errorf("Expected slewing and tracking gauges at 1")
	}
	if got := testutil.ToFloat64(c.Temperature); got != 6.5 {
		t.Errorf("Expected temperature 6.5, got %v", got)
	}

	c.ObserveSnapshot(mount.Snapshot{TrackingState: mount.Stopped})
	if testutil.ToFloat64(c.Tracking) != 0 {
		t.Errorf("Expected tracking 0 when stopped")
	}

	c.ObserveModel(alignment.Model{NumberStars: 42, RMS: 7.5})
	if testutil.ToFloat64(c.ModelStars) != 42 || testutil.ToFloat64(c.ModelRMS) != 7.5 {
		t.Errorf("Expected model gauges 42 and 7.5")
	}
}

func TestModelingMetrics(t *testing.T) {
	c := newCollector(t)

	c.PointFinished("slewed")
	c.PointFinished("slewed")
	c.PointFinished("solved")
	c.RunFinished("refine", "finished", 10*time.Minute)

	if got := testutil.ToFloat64(c.Points.WithLabelValues("slewed")); got != 2 {
		t.Errorf("Expected 2 slewed points, got %v", got)
	}
	if got := testutil.ToFloat64(c.Runs.WithLabelValues("refine", "finished")); got != 1 {
		t.Errorf("Expected 1 finished run, got %v", got)
	}
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	a.PointFinished("imaged")
	if got := testutil.ToFloat64(b.Points.WithLabelValues("imaged")); got != 1 {
		t.Errorf("Expected shared counter, got %v", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.CommandSent("GR", time.Millisecond, nil)
	c.RunFinished("sync", "failed", time.Second)
	c.ObserveSnapshot(mount.Snapshot{})
}

func TestHandler(t *testing.T) {
	c := newCollector(t)
	c.ConnectionChanged(true)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "mount_connected 1") {
		t.Errorf("Expected mount_connected in output, got %s", body)
	}
}
