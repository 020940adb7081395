package rpcpool

import "time"

// EndpointConfig is one candidate RPC URL. Lower priority is preferred.
type EndpointConfig struct {
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// PoolConfig is the resolved input for one chain's pool.
type PoolConfig struct {
	ChainID   string
	Name      string
	Symbol    string
	Endpoints []EndpointConfig
	Factory   ClientFactory
	// HealthChecker overrides the monitor's checker for this chain when set
	HealthChecker HealthChecker
}

// Trigger names what caused a pool to change its bound endpoint
type Trigger string

const (
	TriggerStartup     Trigger = "startup"
	TriggerRequest     Trigger = "request"
	TriggerHealthCheck Trigger = "health_check"
	TriggerFailBack    Trigger = "fail_back"
	TriggerDegraded    Trigger = "degraded"
)

// FailoverEvent describes one change of a pool's bound endpoint.
// FromURL is empty when the pool was degraded, ToURL is empty when it became degraded.
type FailoverEvent struct {
	ChainID string    `json:"chain_id"`
	FromURL string    `json:"from_url,omitempty"`
	ToURL   string    `json:"to_url,omitempty"`
	Trigger Trigger   `json:"trigger"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// PoolHealthSnapshot represents the health status of one chain's pool
type PoolHealthSnapshot struct {
	ChainID             string           `json:"chain_id"`
	Name                string           `json:"name,omitempty"`
	Symbol              string           `json:"symbol,omitempty"`
	ActiveURL           string           `json:"active_url"`
	Healthy             bool             `json:"healthy"`
	Degraded            bool             `json:"degraded"`
	LatencyMs           int64            `json:"latency_ms"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	HealthyCount        int              `json:"healthy_count"`
	TotalEndpoints      int              `json:"total_endpoints"`
	Endpoints           []EndpointStatus `json:"endpoints"`
}

// EndpointStatus represents the status of a single endpoint
type EndpointStatus struct {
	URL                 string    `json:"url"`
	Priority            int       `json:"priority"`
	Active              bool      `json:"active"`
	Healthy             bool      `json:"healthy"`
	LatencyMs           int64     `json:"latency_ms"`
	AverageLatencyMs    int64     `json:"average_latency_ms"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalRequests       uint64    `json:"total_requests"`
	FailedRequests      uint64    `json:"failed_requests"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}
