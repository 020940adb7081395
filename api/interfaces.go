package api

import "github.com/pushchain/chainconn/rpcpool"

// HealthProvider exposes pool health to the query server
type HealthProvider interface {
	Health(chainID string) (rpcpool.PoolHealthSnapshot, error)
	HealthAll() []rpcpool.PoolHealthSnapshot
	Running() bool
}

// FailoverSource lists recorded failover events, newest first
type FailoverSource interface {
	ListFailovers(chainID string, limit int) ([]rpcpool.FailoverEvent, error)
}
