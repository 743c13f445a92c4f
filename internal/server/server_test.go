package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/mount-modeler/internal/db"
	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
	"github.com/unklstewy/mount-modeler/pkg/modeling"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

// fakeMount answers queued commands from a function.
type fakeMount struct {
	mu     sync.Mutex
	snap   mount.Snapshot
	full   bool
	answer func(mount.Command) mount.Result
	got    []mount.Command
}

func (f *fakeMount) Snapshot() mount.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeMount) Enqueue(cmd mount.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return mount.ErrQueueFull
	}
	f.got = append(f.got, cmd)
	if f.answer != nil && cmd.Reply != nil {
		cmd.Reply <- f.answer(cmd)
	}
	return nil
}

type fakeModels struct{}

func (fakeModels) Model() alignment.Model {
	return alignment.Model{NumberStars: 12, RMS: 8.5}
}

func (fakeModels) Measurements() []measurement.Point { return nil }

type fakeRuns struct {
	mu        sync.Mutex
	running   bool
	cancelled bool
	startErr  error
	req       RunRequest
}

func (f *fakeRuns) Progress() modeling.Progress {
	return modeling.Progress{RunID: "abc", Phase: "slewing", Index: 2, Total: 10}
}

func (f *fakeRuns) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRuns) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

func (f *fakeRuns) Start(req RunRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = req
	if f.startErr != nil {
		return "", f.startErr
	}
	f.running = true
	return "run-1", nil
}

type fakeSlots struct{ err error }

func (f fakeSlots) Slots(context.Context) ([]db.SlotInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []db.SlotInfo{{Slot: "ACTUAL", PointCount: 3, UpdatedAt: time.Unix(0, 0).UTC()}}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr, out
}

// TestStatusAndHealth tests the read-only mount routes.
func TestStatusAndHealth(t *testing.T) {
	m := &fakeMount{snap: mount.Snapshot{Connected: true, RAJNow: 6.5, Pierside: "W"}}
	healthy := true
	s := New(Deps{Mount: m, Health: func(context.Context) bool { return healthy }})

	rr, body := do(t, s, http.MethodGet, "/api/v1/mount/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if body["raJNow"] != 6.5 || body["pierside"] != "W" {
		t.Errorf("Expected snapshot fields, got %v", body)
	}

	rr, body = do(t, s, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || body["mount"] != true {
		t.Errorf("Expected healthy mount, got %d %v", rr.Code, body)
	}
	healthy = false
	rr, _ = do(t, s, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with store down, got %d", rr.Code)
	}
}

// TestPostCommand tests command parsing, queueing and replies.
func TestPostCommand(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		answer     mount.Result
		full       bool
		wantStatus int
	}{
		{"Save model", `{"command":"SaveModel","slot":"DSO1"}`, mount.Result{Reply: "1"}, false, http.StatusOK},
		{"Case insensitive", `{"command":"clearalign"}`, mount.Result{}, false, http.StatusOK},
		{"Unknown", `{"command":"Explode"}`, mount.Result{}, false, http.StatusBadRequest},
		{"Bad body", `{`, mount.Result{}, false, http.StatusBadRequest},
		{"Queue full", `{"command":"Flip"}`, mount.Result{}, true, http.StatusServiceUnavailable},
		{"Not connected", `{"command":"Flip"}`, mount.Result{Err: mount.ErrNotConnected}, false, http.StatusServiceUnavailable},
		{"Simulation", `{"command":"ClearAlign"}`, mount.Result{Err: fmt.Errorf("clear: %w", alignment.ErrSimulation)}, false, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMount{full: tt.full, answer: func(mount.Command) mount.Result { return tt.answer }}
			s := New(Deps{Mount: m})
			rr, _ := do(t, s, http.MethodPost, "/api/v1/mount/commands", tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d (%s)", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}

	m := &fakeMount{answer: func(mount.Command) mount.Result { return mount.Result{} }}
	s := New(Deps{Mount: m})
	do(t, s, http.MethodPost, "/api/v1/mount/commands", `{"command":"RunTargetRMSAlignment","targetRMS":12.5}`)
	if len(m.got) != 1 || m.got[0].Verb != mount.RunTargetRMSAlignment || m.got[0].TargetRMS != 12.5 {
		t.Errorf("Expected queued target RMS command, got %+v", m.got)
	}

	do(t, s, http.MethodPost, "/api/v1/mount/commands", `{"command":"ReplayModel","slot":"REFINE"}`)
	do(t, s, http.MethodPost, "/api/v1/mount/commands", `{"command":"deletemodel","slot":"DSO2"}`)
	if len(m.got) != 3 || m.got[1].Verb != mount.ReplayModel || m.got[1].Slot != "REFINE" ||
		m.got[2].Verb != mount.DeleteModel || m.got[2].Slot != "DSO2" {
		t.Errorf("Expected queued replay and delete commands, got %+v", m.got)
	}
}

// TestModelRoutes tests model routes with and without a model cache.
func TestModelRoutes(t *testing.T) {
	s := New(Deps{Mount: &fakeMount{}, Models: fakeModels{}})
	rr, body := do(t, s, http.MethodGet, "/api/v1/model", "")
	if rr.Code != http.StatusOK || body["numberStars"] != 12.0 {
		t.Errorf("Expected model with 12 stars, got %d %v", rr.Code, body)
	}
	rr, _ = do(t, s, http.MethodGet, "/api/v1/model/measurements", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", rr.Body.String())
	}

	s = New(Deps{Mount: &fakeMount{}})
	rr, _ = do(t, s, http.MethodGet, "/api/v1/model", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without models, got %d", rr.Code)
	}
}

// TestModelingRoutes tests starting, reading and cancelling runs.
func TestModelingRoutes(t *testing.T) {
	runs := &fakeRuns{}
	s := New(Deps{Mount: &fakeMount{}, Runs: runs})

	rr, body := do(t, s, http.MethodPost, "/api/v1/modeling", `{"plan":"grid","mode":"refine"}`)
	if rr.Code != http.StatusAccepted || body["runId"] != "run-1" {
		t.Fatalf("Expected accepted run-1, got %d %v", rr.Code, body)
	}
	if runs.req.Plan != "grid" || runs.req.Mode != "refine" {
		t.Errorf("Expected request to be passed on, got %+v", runs.req)
	}

	rr, body = do(t, s, http.MethodGet, "/api/v1/modeling", "")
	progress, _ := body["progress"].(map[string]interface{})
	if rr.Code != http.StatusOK || body["running"] != true || progress["state"] != "slewing" {
		t.Errorf("Expected running progress, got %v", body)
	}

	_, body = do(t, s, http.MethodDelete, "/api/v1/modeling", "")
	if body["cancelled"] != true || !runs.cancelled {
		t.Errorf("Expected cancel, got %v", body)
	}

	runs.startErr = modeling.ErrRunActive
	rr, _ = do(t, s, http.MethodPost, "/api/v1/modeling", `{"plan":"grid"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for active run, got %d", rr.Code)
	}
	runs.startErr = fmt.Errorf("%w: unknown plan", ErrBadRequest)
	rr, _ = do(t, s, http.MethodPost, "/api/v1/modeling", `{"plan":"spiral"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown plan, got %d", rr.Code)
	}
}

// TestSlotsRoute tests the store listing.
func TestSlotsRoute(t *testing.T) {
	s := New(Deps{Mount: &fakeMount{}, Slots: fakeSlots{}})
	rr, _ := do(t, s, http.MethodGet, "/api/v1/store/slots", "")
	var slots []db.SlotInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &slots); err != nil || len(slots) != 1 || slots[0].Slot != "ACTUAL" {
		t.Errorf("Expected one ACTUAL slot, got %s", rr.Body.String())
	}

	s = New(Deps{Mount: &fakeMount{}, Slots: fakeSlots{err: errors.New("disk")}})
	rr, _ = do(t, s, http.MethodGet, "/api/v1/store/slots", "")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rr.Code)
	}
}

// TestMountedHandlers tests that metrics and stream handlers are routed.
func TestMountedHandlers(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mount_connected 1\n"))
	})
	s := New(Deps{Mount: &fakeMount{}, Metrics: metrics})
	rr, _ := do(t, s, http.MethodGet, "/metrics", "")
	if !strings.Contains(rr.Body.String(), "mount_connected") {
		t.Errorf("Expected metrics output, got %s", rr.Body.String())
	}
	rr, _ = do(t, s, http.MethodGet, "/ws", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without stream, got %d", rr.Code)
	}
}
