package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// RiskRequest is the body of POST /score.
type RiskRequest struct {
	Features  json.RawMessage `json:"features"`
	RequestID string          `json:"request_id,omitempty"`
}

// RiskResponse is the reply of POST /score.
type RiskResponse struct {
	Risk         float64   `json:"risk"`
	Decision     Decision  `json:"decision"`
	Threshold    float64   `json:"threshold"`
	RequestID    string    `json:"request_id,omitempty"`
	ModelVersion string    `json:"model_version,omitempty"`
	Latency      float64   `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// ModelServer provides HTTP API for risk scoring
type ModelServer struct {
	scorer     *Scorer
	modelDir   string
	timeout    time.Duration
	rejectRate func() float64
	server     *http.Server
}

// ServerOptions configures NewModelServer.
type ServerOptions struct {
	Port int
	// ModelDir enables POST /model/reload.
	ModelDir string
	// Timeout bounds a single scoring call.
	Timeout time.Duration
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// RejectRate adds the observed reject rate to GET /model/info.
	RejectRate func() float64
}

// NewModelServer creates a new HTTP server for risk scoring
func NewModelServer(scorer *Scorer, opts ServerOptions) *ModelServer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ms := &ModelServer{
		scorer:     scorer,
		modelDir:   opts.ModelDir,
		timeout:    timeout,
		rejectRate: opts.RejectRate,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/score", ms.handleScore)
	mux.HandleFunc("/health", ms.handleHealth)
	mux.HandleFunc("/model/info", ms.handleModelInfo)
	mux.HandleFunc("/model/reload", ms.handleReload)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	ms.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return ms
}

// Handler exposes the routes, mainly for tests.
func (ms *ModelServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Msg("starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var req RiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Features) == 0 {
		http.Error(w, "features cannot be empty", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ms.timeout)
	defer cancel()

	result, err := ms.scorer.ScoreJSON(ctx, req.Features)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrSchema) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("scoring failed")
		http.Error(w, fmt.Sprintf("scoring failed: %v", err), status)
		return
	}

	resp := RiskResponse{
		Risk:         result.Risk,
		Decision:     result.Decision,
		Threshold:    result.Threshold,
		RequestID:    req.RequestID,
		ModelVersion: ms.scorer.Version(),
		Latency:      float64(time.Since(start).Microseconds()) / 1000,
		Timestamp:    time.Now(),
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	artifact := ms.scorer.Artifact()
	healthy := artifact != nil && artifact.Model != nil

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]interface{}{
		"healthy": healthy,
		"version": ms.scorer.Version(),
	})
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	artifact := ms.scorer.Artifact()
	info := map[string]interface{}{
		"version":     ms.scorer.Version(),
		"family":      artifact.Model.Family(),
		"features":    artifact.Schema,
		"threshold":   artifact.Meta.Threshold,
		"quantile":    artifact.Meta.Quantile,
		"n_samples":   artifact.Meta.NSamples,
		"concordance": artifact.Meta.Concordance,
		"trained_at":  artifact.Meta.TrainedAt,
	}
	if ms.rejectRate != nil {
		info["reject_rate"] = ms.rejectRate()
	}
	writeJSONResponse(w, http.StatusOK, info)
}

// handleReload picks up the active artifact after `models activate`.
func (ms *ModelServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ms.modelDir == "" {
		http.Error(w, "reload not enabled", http.StatusNotFound)
		return
	}

	family := ms.scorer.Artifact().Model.Family()
	artifact, err := LoadArtifact(ms.modelDir, family)
	if err != nil {
		log.Error().Err(err).Msg("model reload failed")
		http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
		return
	}

	version := ""
	if mm, err := NewModelManager(ms.modelDir); err == nil {
		if v := mm.GetCurrentVersion(family); v != nil {
			version = v.Version
		}
	}
	ms.scorer.Swap(artifact, version)

	log.Info().Str("family", family).Str("version", version).Msg("model reloaded")
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"family":  family,
		"version": version,
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
