// Package ui exposes the correction service over HTTP
package ui

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"corrcov/app"
	"corrcov/domain/core"
	"corrcov/domain/finemap"
	"corrcov/internal/errors"
	"corrcov/ports"
)

// Server is the HTTP front end of the correction service
type Server struct {
	router  *chi.Mux
	service *app.CorrectionService
	runs    ports.RunRepository // nil when persistence is disabled
}

// NewServer creates a new server around the correction service
func NewServer(service *app.CorrectionService, runs ports.RunRepository) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
		runs:    runs,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Post("/api/posteriors", s.handlePosteriors)
	s.router.Post("/api/credible-set", s.handleCredibleSet)
	s.router.Post("/api/corrections/coverage", s.handleCorrectedCoverage)
	s.router.Post("/api/corrections/coverage/interval", s.handleCoverageInterval)
	s.router.Post("/api/corrections/credible-set", s.handleCorrectedCredibleSet)

	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	log.Printf("[Server] starting corrcov API on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router exposes the underlying router (for tests)
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type posteriorsRequest struct {
	Region *finemap.Region `json:"region"`
	PriorW float64         `json:"w,omitempty"`
}

func (s *Server) handlePosteriors(w http.ResponseWriter, r *http.Request) {
	var req posteriorsRequest
	if !decode(w, r, &req) {
		return
	}
	pp, err := s.service.PosteriorProbabilities(req.Region, req.PriorW)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pp": pp})
}

type credibleSetRequest struct {
	Region    *finemap.Region `json:"region"`
	Threshold float64         `json:"threshold"`
	PriorW    float64         `json:"w,omitempty"`
	CausalID  string          `json:"causal_id,omitempty"`
}

func (s *Server) handleCredibleSet(w http.ResponseWriter, r *http.Request) {
	var req credibleSetRequest
	if !decode(w, r, &req) {
		return
	}
	pp, err := s.service.PosteriorProbabilities(req.Region, req.PriorW)
	if err != nil {
		writeError(w, err)
		return
	}
	set, err := s.service.BuildCredibleSet(req.Region, pp, req.Threshold, core.VariantID(req.CausalID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

type coverageRequest struct {
	Region    *finemap.Region `json:"region"`
	Threshold float64         `json:"threshold"`
	PriorW    float64         `json:"w,omitempty"`
	NRep      int             `json:"nrep,omitempty"`
	PP0Min    float64         `json:"pp0min,omitempty"`
	Seed      uint64          `json:"seed,omitempty"`
	Repeats   int             `json:"repeats,omitempty"`
}

func (c coverageRequest) toApp() app.CoverageRequest {
	return app.CoverageRequest{
		Region:    c.Region,
		Threshold: c.Threshold,
		PriorW:    c.PriorW,
		NRep:      c.NRep,
		PP0Min:    c.PP0Min,
		Seed:      c.Seed,
	}
}

func (s *Server) handleCorrectedCoverage(w http.ResponseWriter, r *http.Request) {
	var req coverageRequest
	if !decode(w, r, &req) {
		return
	}
	estimate, err := s.service.CorrectedCoverage(r.Context(), req.toApp())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (s *Server) handleCoverageInterval(w http.ResponseWriter, r *http.Request) {
	var req coverageRequest
	if !decode(w, r, &req) {
		return
	}
	interval, err := s.service.CorrectedCoverageInterval(r.Context(), req.toApp(), req.Repeats)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, interval)
}

type correctedSetRequest struct {
	Region          *finemap.Region `json:"region"`
	DesiredCoverage float64         `json:"desired_coverage"`
	Lower           float64         `json:"lower,omitempty"`
	Upper           float64         `json:"upper,omitempty"`
	Accuracy        float64         `json:"acc,omitempty"`
	MaxIter         int             `json:"max_iter,omitempty"`
	PriorW          float64         `json:"w,omitempty"`
	NRep            int             `json:"nrep,omitempty"`
	PP0Min          float64         `json:"pp0min,omitempty"`
	Seed            uint64          `json:"seed,omitempty"`
}

func (s *Server) handleCorrectedCredibleSet(w http.ResponseWriter, r *http.Request) {
	var req correctedSetRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := s.service.CorrectedCredibleSet(r.Context(), app.CredibleSetRequest{
		Region:          req.Region,
		DesiredCoverage: req.DesiredCoverage,
		Lower:           req.Lower,
		Upper:           req.Upper,
		Accuracy:        req.Accuracy,
		MaxIter:         req.MaxIter,
		PriorW:          req.PriorW,
		NRep:            req.NRep,
		PP0Min:          req.PP0Min,
		Seed:            req.Seed,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, errors.New(errors.CodeNotFound, "run persistence is not configured"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	runs, err := s.runs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, errors.New(errors.CodeNotFound, "run persistence is not configured"))
		return
	}
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.InvalidInput("run id is required"))
		return
	}
	run, err := s.runs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if run == nil {
		writeError(w, errors.NotFound("run"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errors.Wrap(errors.InvalidInput("malformed JSON body"), err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Server] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput, errors.CodeInvalidCorrelation:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeNoRootInRange, errors.CodeCannotShrinkFurther, errors.CodeNumericalInstability:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
