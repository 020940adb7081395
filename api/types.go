package api

import "time"

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusResponse is the body of GET /health
type StatusResponse struct {
	Status        string `json:"status"` // "ok", "degraded" or "stopped"
	Chains        int    `json:"chains"`
	HealthyChains int    `json:"healthy_chains"`
}
