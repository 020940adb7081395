package rpcpool

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	chainerrors "github.com/pushchain/chainconn/errors"
)

var errConnRefused = errors.New("dial tcp: connection refused")

// fakeBackend simulates a set of RPC endpoints keyed by URL.
type fakeBackend struct {
	mu      sync.Mutex
	failing map[string]bool
	hanging map[string]bool
	dialErr map[string]bool
	calls   map[string]int
	dials   map[string]int
	closes  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		failing: make(map[string]bool),
		hanging: make(map[string]bool),
		dialErr: make(map[string]bool),
		calls:   make(map[string]int),
		dials:   make(map[string]int),
	}
}

func (b *fakeBackend) setFailing(url string, failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[url] = failing
}

func (b *fakeBackend) setHanging(url string, hanging bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hanging[url] = hanging
}

func (b *fakeBackend) setDialError(url string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr[url] = fail
}

func (b *fakeBackend) callCount(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[url]
}

func (b *fakeBackend) dialCount(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials[url]
}

func (b *fakeBackend) factory() ClientFactory {
	return func(url string) (Client, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.dials[url]++
		if b.dialErr[url] {
			return nil, errors.New("invalid endpoint")
		}
		return &fakeClient{url: url, backend: b}, nil
	}
}

type fakeClient struct {
	url     string
	backend *fakeBackend
}

func (c *fakeClient) do(ctx context.Context) error {
	b := c.backend
	b.mu.Lock()
	b.calls[c.url]++
	failing, hanging := b.failing[c.url], b.hanging[c.url]
	b.mu.Unlock()

	if hanging {
		<-ctx.Done()
		return ctx.Err()
	}
	if failing {
		return errConnRefused
	}
	return nil
}

func (c *fakeClient) GetBlockHeight(ctx context.Context) (uint64, error) {
	if err := c.do(ctx); err != nil {
		return 0, err
	}
	return 100, nil
}

func (c *fakeClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if address == "" {
		return nil, chainerrors.NewValidationError("", "invalid address")
	}
	if err := c.do(ctx); err != nil {
		return nil, err
	}
	return big.NewInt(42), nil
}

func (c *fakeClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	if err := c.do(ctx); err != nil {
		return 0, err
	}
	return 7, nil
}

func (c *fakeClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.do(ctx); err != nil {
		return nil, err
	}
	return big.NewInt(1_000_000_000), nil
}

func (c *fakeClient) SubmitRawTransaction(ctx context.Context, raw []byte) (string, error) {
	if err := c.do(ctx); err != nil {
		return "", err
	}
	return "0xabc", nil
}

func (c *fakeClient) Close() error {
	c.backend.mu.Lock()
	c.backend.closes++
	c.backend.mu.Unlock()
	return nil
}

// recordingObserver captures pool events for assertions
type recordingObserver struct {
	mu        sync.Mutex
	results   []error
	urls      []string
	failovers []FailoverEvent
	exhausted []int
}

func (o *recordingObserver) OnEndpointResult(chainID, url, operation string, latency time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, err)
	o.urls = append(o.urls, url)
}

func (o *recordingObserver) OnFailover(event FailoverEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failovers = append(o.failovers, event)
}

func (o *recordingObserver) OnPoolExhausted(chainID, operation string, endpointsTried int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exhausted = append(o.exhausted, endpointsTried)
}

func (o *recordingObserver) failoverEvents() []FailoverEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]FailoverEvent(nil), o.failovers...)
}

// MockHealthChecker is a mock implementation of HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context, client Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func newTestPool(t *testing.T, backend *fakeBackend, observer Observer, urls ...string) *ChainPool {
	t.Helper()
	endpoints := make([]EndpointConfig, len(urls))
	for i, url := range urls {
		endpoints[i] = EndpointConfig{URL: url, Priority: i}
	}
	pool, err := NewChainPool(PoolConfig{
		ChainID:   "eip155:1",
		Name:      "Ethereum",
		Symbol:    "ETH",
		Endpoints: endpoints,
		Factory:   backend.factory(),
	}, DefaultMaxFailures, observer, zerolog.Nop())
	require.NoError(t, err)
	return pool
}

func failuresOf(pool *ChainPool, url string) int {
	for _, ep := range pool.Snapshot().Endpoints {
		if ep.URL == url {
			return ep.ConsecutiveFailures
		}
	}
	return -1
}

func activeURL(pool *ChainPool) string {
	return pool.Snapshot().ActiveURL
}
