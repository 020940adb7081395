package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	chainerrors "github.com/pushchain/chainconn/errors"
)

// handleHealth handles GET /health. It answers 503 while the manager is
// not running or when any chain is degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshots := s.health.HealthAll()
	status := StatusResponse{Status: "ok", Chains: len(snapshots)}
	for _, snap := range snapshots {
		if !snap.Degraded {
			status.HealthyChains++
		}
	}

	code := http.StatusOK
	switch {
	case !s.health.Running():
		status.Status = "stopped"
		code = http.StatusServiceUnavailable
	case status.HealthyChains < status.Chains:
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

// handleChains handles GET /api/v1/chains
func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:      s.health.HealthAll(),
		Timestamp: time.Now().UTC(),
	})
}

// handleChainHealth handles GET /api/v1/chains/{chainID}/health
func (s *Server) handleChainHealth(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chainID"]

	snapshot, err := s.health.Health(chainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:      snapshot,
		Timestamp: time.Now().UTC(),
	})
}

// handleChainFailovers handles GET /api/v1/chains/{chainID}/failovers?limit=<n>
func (s *Server) handleChainFailovers(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chainID"]

	if _, err := s.health.Health(chainID); err != nil {
		s.writeError(w, err)
		return
	}
	if s.failovers == nil {
		s.writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "failover journal is disabled"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	events, err := s.failovers.ListFailovers(chainID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("chain_id", chainID).Msg("failed to list failovers")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list failovers"})
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:      events,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var chainErr *chainerrors.ChainError
	if !chainerrors.As(err, &chainErr) {
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	code := http.StatusInternalServerError
	switch chainErr.Code {
	case chainerrors.ErrCodeUnknownChain:
		code = http.StatusNotFound
	case chainerrors.ErrCodeValidation:
		code = http.StatusBadRequest
	}
	s.writeJSON(w, code, ErrorResponse{Error: chainErr.Error(), Code: string(chainErr.Code)})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}
