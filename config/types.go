package config

import (
	"fmt"
	"time"
)

// VM names the client family used for a chain's endpoints
type VM string

const (
	VMEVM VM = "evm"
	VMSVM VM = "svm"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Query Server Config
	QueryServerPort int  `json:"query_server_port"` // Port for HTTP query server (default: 8080)
	MetricsEnabled  bool `json:"metrics_enabled"`   // Serve /metrics on the query server

	// Failover journal
	DatabasePath                  string `json:"database_path"`                    // SQLite file for failover events; empty keeps them in memory
	JournalRetentionSeconds       int    `json:"journal_retention_seconds"`        // How long failover events are kept (default: 604800)
	JournalCleanupIntervalSeconds int    `json:"journal_cleanup_interval_seconds"` // How often old failover events are pruned (default: 3600)

	// RPC Pool configuration
	RPCPool RPCPoolConfig `json:"rpc_pool"`

	// Unified per-chain configuration
	ChainConfigs map[string]ChainSpecificConfig `json:"chain_configs"` // Map of chain ID to all chain-specific settings
}

// RPCPoolConfig holds health check and failover settings shared by all chains
type RPCPoolConfig struct {
	HealthCheckIntervalSeconds int `json:"health_check_interval_seconds"` // Time between probe rounds (default: 30)
	HealthCheckTimeoutSeconds  int `json:"health_check_timeout_seconds"`  // Bound on a single probe (default: 5)
	RequestTimeoutSeconds      int `json:"request_timeout_seconds"`       // Bound on a single request attempt (default: 10)
	UnhealthyThreshold         int `json:"unhealthy_threshold"`           // Consecutive failures before an endpoint is unhealthy (default: 3)
}

// HealthCheckInterval returns the probe interval as a duration
func (r RPCPoolConfig) HealthCheckInterval() time.Duration {
	return time.Duration(r.HealthCheckIntervalSeconds) * time.Second
}

// HealthCheckTimeout returns the probe timeout as a duration
func (r RPCPoolConfig) HealthCheckTimeout() time.Duration {
	return time.Duration(r.HealthCheckTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-attempt request timeout as a duration
func (r RPCPoolConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSeconds) * time.Second
}

// EndpointConfig is an RPC URL with an explicit priority. Lower is preferred.
type EndpointConfig struct {
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// ChainSpecificConfig holds all chain-specific configuration in one place
type ChainSpecificConfig struct {
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	VM     VM     `json:"vm"`

	// RPC Configuration
	RPCURLs   []string         `json:"rpc_urls,omitempty"`  // RPC endpoints for this chain, ranked by position
	Endpoints []EndpointConfig `json:"endpoints,omitempty"` // RPC endpoints with explicit priority

	// Network identity checks run by the health monitor
	EVMChainID     int64  `json:"evm_chain_id,omitempty"`     // eth_chainId the endpoints must report
	SVMGenesisHash string `json:"svm_genesis_hash,omitempty"` // Genesis hash (or CAIP-2 prefix) the endpoints must report
}

// GetChainConfig returns the configuration for a specific chain
func (c *Config) GetChainConfig(chainID string) (ChainSpecificConfig, error) {
	if c.ChainConfigs == nil {
		return ChainSpecificConfig{}, fmt.Errorf("no chain configs found")
	}
	config, ok := c.ChainConfigs[chainID]
	if !ok {
		return ChainSpecificConfig{}, fmt.Errorf("no config found for chain %s", chainID)
	}
	return config, nil
}

// ResolvedEndpoints returns the chain's endpoints with priorities assigned.
// rpc_urls are ranked by position and come before explicit endpoints of
// equal priority.
func (c ChainSpecificConfig) ResolvedEndpoints() []EndpointConfig {
	out := make([]EndpointConfig, 0, len(c.RPCURLs)+len(c.Endpoints))
	for i, url := range c.RPCURLs {
		out = append(out, EndpointConfig{URL: url, Priority: i})
	}
	return append(out, c.Endpoints...)
}
