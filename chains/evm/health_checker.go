package evm

import (
	"context"
	"fmt"

	"github.com/pushchain/chainconn/rpcpool"
)

// HealthChecker probes EVM endpoints. Besides fetching the block number it
// verifies that the endpoint serves the expected network.
type HealthChecker struct {
	expectedChainID int64
}

var _ rpcpool.HealthChecker = (*HealthChecker)(nil)

// NewHealthChecker creates a new EVM health checker. An expectedChainID of 0
// skips the network check.
func NewHealthChecker(expectedChainID int64) *HealthChecker {
	return &HealthChecker{
		expectedChainID: expectedChainID,
	}
}

// CheckHealth performs a health check on an EVM client
func (h *HealthChecker) CheckHealth(ctx context.Context, client rpcpool.Client) error {
	blockNumber, err := client.GetBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	// Basic sanity check - block number should be reasonable
	if blockNumber == 0 {
		return fmt.Errorf("block number is zero, chain may not be synced")
	}

	evmClient, ok := client.(*Client)
	if !ok || h.expectedChainID == 0 {
		return nil
	}

	chainID, err := evmClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Int64() != h.expectedChainID {
		return fmt.Errorf("chain ID mismatch: expected %d, got %d",
			h.expectedChainID, chainID.Int64())
	}

	return nil
}
