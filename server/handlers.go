package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/P40-traveler/pathce/pkg/estimate"
	"github.com/P40-traveler/pathce/pkg/models"
	"github.com/P40-traveler/pathce/pkg/parser"
	"github.com/P40-traveler/pathce/pkg/summary"
	"github.com/P40-traveler/pathce/pkg/validation"
)

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"summaries": len(s.store.List()),
		"timestamp": time.Now().UTC(),
	})
}

type buildRequest struct {
	Name       string `json:"name"`
	VertexFile string `json:"vertex_file"`
	EdgeFile   string `json:"edge_file"`
	Scheme     string `json:"scheme,omitempty"`
}

func (s *Server) handleBuildSummary(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.VertexFile == "" || req.EdgeFile == "" {
		writeError(w, http.StatusBadRequest, "vertex_file and edge_file are required")
		return
	}

	g, err := parser.LoadGraph(req.VertexFile, req.EdgeFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to load graph: "+err.Error())
		return
	}

	if req.Scheme != "" {
		s.cfg.Set("build.scheme", req.Scheme)
	}
	params, err := s.cfg.BuildParams()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid build parameters: "+err.Error())
		return
	}

	sum, err := summary.Build(g, params, s.cfg.NumWorkers(), s.cfg.CreateLogger())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "summary build failed: "+err.Error())
		return
	}

	name := req.Name
	if name == "" {
		name = req.VertexFile
	}
	info := s.store.Put(name, sum)
	log.Info().Str("summary_id", info.ID).Int("colors", info.NumColors).Msg("Summary built")
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["summaryId"]
	sum, info, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "summary not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"info":     info,
		"describe": sum.Describe(),
	})
}

func (s *Server) handleDeleteSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["summaryId"]
	if !s.store.Delete(id) {
		writeError(w, http.StatusNotFound, "summary not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleSaveSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["summaryId"]
	sum, _, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "summary not found: "+id)
		return
	}
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := summary.Save(sum, req.Path); err != nil {
		writeError(w, http.StatusInternalServerError, "save failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

type loadRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) handleLoadSummary(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	sum, err := summary.Load(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "load failed: "+err.Error())
		return
	}
	name := req.Name
	if name == "" {
		name = req.Path
	}
	info := s.store.Put(name, sum)
	writeJSON(w, http.StatusCreated, info)
}

type estimateRequest struct {
	Pattern models.Pattern `json:"pattern"`
	Config  *struct {
		MaxPartialPaths  *int     `json:"max_partial_paths,omitempty"`
		MaxStarDegree    *int     `json:"max_star_degree,omitempty"`
		UsePartialSums   *bool    `json:"use_partial_sums,omitempty"`
		SamplingStrategy *string  `json:"sampling_strategy,omitempty"`
		TimeoutSeconds   *float64 `json:"timeout_seconds,omitempty"`
		SampleSize       *int     `json:"sample_size,omitempty"`
		Seed             *int64   `json:"seed,omitempty"`
	} `json:"config,omitempty"`
}

type estimateResponse struct {
	Bound     float64  `json:"bound"`
	LatencyMs float64  `json:"latency_ms"`
	QError    *float64 `json:"q_error,omitempty"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["summaryId"]
	sum, _, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "summary not found: "+id)
		return
	}

	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidatePattern(&req.Pattern, sum); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.cfg.EstimateConfig()
	if o := req.Config; o != nil {
		if o.MaxPartialPaths != nil {
			cfg.MaxPartialPaths = *o.MaxPartialPaths
		}
		if o.MaxStarDegree != nil {
			cfg.MaxStarDegree = *o.MaxStarDegree
		}
		if o.UsePartialSums != nil {
			cfg.UsePartialSums = *o.UsePartialSums
		}
		if o.SamplingStrategy != nil {
			cfg.SamplingStrategy = estimate.SamplingStrategy(*o.SamplingStrategy)
		}
		if o.TimeoutSeconds != nil {
			cfg.TimeoutSeconds = *o.TimeoutSeconds
		}
		if o.SampleSize != nil {
			cfg.SampleSize = *o.SampleSize
		}
		if o.Seed != nil {
			cfg.Seed = *o.Seed
		}
	}

	bound, err := estimate.Estimate(&req.Pattern, sum, cfg, s.cfg.CreateLogger())
	if err != nil {
		writeError(w, http.StatusBadRequest, "estimation failed: "+err.Error())
		return
	}

	resp := estimateResponse{
		Bound:     bound.Bound,
		LatencyMs: float64(bound.Latency) / float64(time.Millisecond),
	}
	if req.Pattern.ExpectedCount != nil {
		q := estimate.QError(bound.Bound, *req.Pattern.ExpectedCount)
		resp.QError = &q
	}
	writeJSON(w, http.StatusOK, resp)
}
