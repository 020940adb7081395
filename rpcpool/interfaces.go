package rpcpool

import (
	"context"
	"math/big"
	"time"
)

// Client defines the chain-RPC operations a pool can route to an endpoint.
// Both EVM (*ethclient.Client) and SVM (*rpc.Client) clients implement this through adapters.
// Inputs the chain cannot accept (malformed address, undecodable payload,
// unsupported operation) must be reported as validation ChainErrors so the
// executor does not blame the endpoint.
type Client interface {
	// GetBlockHeight returns the latest block number (EVM) or block height (SVM)
	GetBlockHeight(ctx context.Context) (uint64, error)

	// GetBalance returns the native balance of address in the smallest unit
	GetBalance(ctx context.Context, address string) (*big.Int, error)

	// GetNonce returns the next nonce to use for address
	GetNonce(ctx context.Context, address string) (uint64, error)

	// GetGasPrice returns the suggested fee unit price
	GetGasPrice(ctx context.Context) (*big.Int, error)

	// SubmitRawTransaction broadcasts a signed transaction and returns its hash or signature
	SubmitRawTransaction(ctx context.Context, raw []byte) (string, error)

	// Close closes the client connection
	Close() error
}

// ClientFactory creates chain-specific clients for a given URL
// This function is provided by each chain implementation (EVM, SVM) to create their specific client types
type ClientFactory func(url string) (Client, error)

// HealthChecker defines the interface for probing an endpoint
type HealthChecker interface {
	CheckHealth(ctx context.Context, client Client) error
}

// BlockHeightChecker probes an endpoint by fetching the latest block height.
type BlockHeightChecker struct{}

// CheckHealth implements HealthChecker
func (BlockHeightChecker) CheckHealth(ctx context.Context, client Client) error {
	_, err := client.GetBlockHeight(ctx)
	return err
}

// Observer receives pool events. Implementations must be safe for concurrent
// use and must not block: they are called from request and probe goroutines.
type Observer interface {
	// OnEndpointResult is called after every request attempt or health probe
	OnEndpointResult(chainID, url, operation string, latency time.Duration, err error)

	// OnFailover is called whenever a pool changes its bound endpoint
	OnFailover(event FailoverEvent)

	// OnPoolExhausted is called when every endpoint failed within one operation
	OnPoolExhausted(chainID, operation string, endpointsTried int)
}

// NopObserver ignores every event. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) OnEndpointResult(string, string, string, time.Duration, error) {}
func (NopObserver) OnFailover(FailoverEvent)                                      {}
func (NopObserver) OnPoolExhausted(string, string, int)                           {}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (o Observers) OnEndpointResult(chainID, url, operation string, latency time.Duration, err error) {
	for _, obs := range o {
		obs.OnEndpointResult(chainID, url, operation, latency, err)
	}
}

func (o Observers) OnFailover(event FailoverEvent) {
	for _, obs := range o {
		obs.OnFailover(event)
	}
}

func (o Observers) OnPoolExhausted(chainID, operation string, endpointsTried int) {
	for _, obs := range o {
		obs.OnPoolExhausted(chainID, operation, endpointsTried)
	}
}
