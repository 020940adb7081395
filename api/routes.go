package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// API v1 endpoints
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/chains", s.handleChains).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chainID}/health", s.handleChainHealth).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chainID}/failovers", s.handleChainFailovers).Methods(http.MethodGet)

	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	return router
}
