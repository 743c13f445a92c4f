// Package server exposes the mount state, the alignment model and modeling
// runs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/unklstewy/mount-modeler/internal/db"
	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
	"github.com/unklstewy/mount-modeler/pkg/modeling"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

// commandTimeout bounds how long a request waits for a queued command.
const commandTimeout = 2 * time.Minute

// Mount is the dispatcher surface the API needs.
type Mount interface {
	Snapshot() mount.Snapshot
	Enqueue(cmd mount.Command) error
}

// Models exposes the alignment model cache.
type Models interface {
	Model() alignment.Model
	Measurements() []measurement.Point
}

// Runs controls modeling runs. Start returns once the run is under way.
type Runs interface {
	Progress() modeling.Progress
	Running() bool
	Cancel()
	Start(req RunRequest) (string, error)
}

// Slots lists stored measurement sets.
type Slots interface {
	Slots(ctx context.Context) ([]db.SlotInfo, error)
}

// RunRequest asks for a modeling run.
type RunRequest struct {
	// Plan is base, grid, dense, normal, dso, timechange, hysterese or file
	Plan string `json:"plan"`
	Mode string `json:"mode"`

	// File is the point list read for the file plan
	File string `json:"file,omitempty"`

	// RA (hours), Dec (degrees) and Hours describe a dso plan. RA and Dec
	// default to the telescope position.
	RA    *float64 `json:"ra,omitempty"`
	Dec   *float64 `json:"dec,omitempty"`
	Hours float64  `json:"hours,omitempty"`

	// Azimuth and Altitude are the second position of a hysterese plan,
	// opposite the telescope by default.
	Azimuth  *float64 `json:"az,omitempty"`
	Altitude *float64 `json:"alt,omitempty"`

	// Count is the number of points of dso and timechange plans, or of
	// position pairs of a hysterese plan
	Count int `json:"count,omitempty"`
}

// CommandRequest is the body of POST /api/v1/mount/commands.
type CommandRequest struct {
	Command     string  `json:"command"`
	Slot        string  `json:"slot,omitempty"`
	TargetRMS   float64 `json:"targetRMS,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Pressure    float64 `json:"pressure,omitempty"`
	Raw         string  `json:"raw,omitempty"`
}

// Deps are the services behind the routes. Mount is required; a nil
// dependency answers 503 on its routes.
type Deps struct {
	Mount   Mount
	Models  Models
	Runs    Runs
	Slots   Slots
	Health  func(ctx context.Context) bool
	Metrics http.Handler
	Stream  http.Handler
	Logger  *logger.Logger
}

// Server holds the router and its dependencies.
type Server struct {
	router *chi.Mux
	deps   Deps
	log    *logger.Logger
}

// New creates a server with all routes mounted.
func New(deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		log:    logger.OrNop(deps.Logger).Component("http"),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}
	if s.deps.Stream != nil {
		r.Handle("/ws", s.deps.Stream)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/mount/status", s.handleGetStatus)
		r.Post("/mount/commands", s.handlePostCommand)

		r.Get("/model", s.handleGetModel)
		r.Get("/model/measurements", s.handleGetMeasurements)

		r.Get("/modeling", s.handleGetProgress)
		r.Post("/modeling", s.handleStartRun)
		r.Delete("/modeling", s.handleCancelRun)

		r.Get("/store/slots", s.handleGetSlots)
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Mount.Snapshot()
	store := true
	if s.deps.Health != nil {
		store = s.deps.Health(r.Context())
	}
	status := http.StatusOK
	if !store {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{
		"mount":      snap.Connected,
		"simulation": snap.Simulation,
		"store":      store,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Mount.Snapshot())
}

func (s *Server) handlePostCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	verb, err := mount.ParseVerb(req.Command)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := make(chan mount.Result, 1)
	cmd := mount.Command{
		Verb:        verb,
		Slot:        req.Slot,
		TargetRMS:   req.TargetRMS,
		Temperature: req.Temperature,
		Pressure:    req.Pressure,
		Raw:         req.Raw,
		Reply:       reply,
	}
	if err := s.deps.Mount.Enqueue(cmd); err != nil {
		if errors.Is(err, mount.ErrQueueFull) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	select {
	case res := <-reply:
		if res.Err != nil {
			s.log.Warnw("command failed", "command", verb.String(), "error", res.Err)
			respondJSON(w, statusFor(res.Err), map[string]interface{}{
				"success": false,
				"command": verb.String(),
				"error":   res.Err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"command": verb.String(),
			"reply":   res.Reply,
		})
	case <-ctx.Done():
		// the command stays queued and runs later
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"success": true,
			"command": verb.String(),
			"pending": true,
		})
	}
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		respondError(w, http.StatusServiceUnavailable, "alignment model not available")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Models.Model())
}

func (s *Server) handleGetMeasurements(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		respondError(w, http.StatusServiceUnavailable, "alignment model not available")
		return
	}
	points := s.deps.Models.Measurements()
	if points == nil {
		points = []measurement.Point{}
	}
	respondJSON(w, http.StatusOK, points)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		respondError(w, http.StatusServiceUnavailable, "modeling not available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"running":  s.deps.Runs.Running(),
		"progress": s.deps.Runs.Progress(),
	})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		respondError(w, http.StatusServiceUnavailable, "modeling not available")
		return
	}
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := s.deps.Runs.Start(req)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"runId":   id,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		respondError(w, http.StatusServiceUnavailable, "modeling not available")
		return
	}
	running := s.deps.Runs.Running()
	s.deps.Runs.Cancel()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"cancelled": running,
	})
}

func (s *Server) handleGetSlots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Slots == nil {
		respondError(w, http.StatusServiceUnavailable, "store not available")
		return
	}
	slots, err := s.deps.Slots.Slots(r.Context())
	if err != nil {
		s.log.Errorw("failed to list slots", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list slots")
		return
	}
	if slots == nil {
		slots = []db.SlotInfo{}
	}
	respondJSON(w, http.StatusOK, slots)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, modeling.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, mount.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, alignment.ErrSimulation):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrBadRequest marks Runs.Start errors caused by the request.
var ErrBadRequest = errors.New("bad request")

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
