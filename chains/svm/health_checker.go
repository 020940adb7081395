package svm

import (
	"context"
	"fmt"

	"github.com/pushchain/chainconn/rpcpool"
)

// HealthChecker probes Solana endpoints: node health, block height and,
// when configured, the genesis hash of the cluster.
type HealthChecker struct {
	expectedGenesisHash string
}

var _ rpcpool.HealthChecker = (*HealthChecker)(nil)

// NewHealthChecker creates a new SVM health checker. An empty
// expectedGenesisHash skips the cluster check.
func NewHealthChecker(expectedGenesisHash string) *HealthChecker {
	return &HealthChecker{
		expectedGenesisHash: expectedGenesisHash,
	}
}

// CheckHealth performs a health check on a Solana client
func (h *HealthChecker) CheckHealth(ctx context.Context, client rpcpool.Client) error {
	svmClient, ok := client.(*Client)
	if ok {
		health, err := svmClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("failed to get health status: %w", err)
		}
		if health != "ok" {
			return fmt.Errorf("node is not healthy: %s", health)
		}
	}

	height, err := client.GetBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block height: %w", err)
	}
	if height == 0 {
		return fmt.Errorf("block height is zero, chain may not be synced")
	}

	if !ok || h.expectedGenesisHash == "" {
		return nil
	}

	actual, err := svmClient.GenesisHash(ctx)
	if err != nil {
		return fmt.Errorf("failed to get genesis hash: %w", err)
	}
	// CAIP-2 chain ids carry a truncated genesis hash, so compare the prefix only
	if len(actual) > len(h.expectedGenesisHash) {
		actual = actual[:len(h.expectedGenesisHash)]
	}
	if actual != h.expectedGenesisHash {
		return fmt.Errorf("genesis hash mismatch: expected %s, got %s", h.expectedGenesisHash, actual)
	}

	return nil
}
