package core

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	chainerrors "github.com/pushchain/chainconn/errors"
	"github.com/pushchain/chainconn/rpcpool"
)

type lifecycle int

const (
	stateNew lifecycle = iota
	stateRunning
	stateStopped
)

// Options tunes failover and health checking for every pool of a manager.
type Options struct {
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	RequestTimeout      time.Duration
	MaxFailures         int

	// HealthChecker replaces the block height probe for pools that carry no checker of their own
	HealthChecker rpcpool.HealthChecker
}

// DefaultOptions returns the default intervals, timeouts and failure threshold
func DefaultOptions() Options {
	return Options{
		HealthCheckInterval: rpcpool.DefaultHealthCheckInterval,
		HealthCheckTimeout:  rpcpool.DefaultHealthCheckTimeout,
		RequestTimeout:      rpcpool.DefaultRequestTimeout,
		MaxFailures:         rpcpool.DefaultMaxFailures,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = d.HealthCheckInterval
	}
	if o.HealthCheckTimeout <= 0 {
		o.HealthCheckTimeout = d.HealthCheckTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = d.MaxFailures
	}
	return o
}

// ConnectionManager routes chain-scoped operations to the current endpoint of
// each chain's pool and keeps those pools healthy in the background.
type ConnectionManager struct {
	pools    map[string]*rpcpool.ChainPool
	chainIDs []string
	executor *rpcpool.Executor
	monitor  *rpcpool.HealthMonitor
	opts     Options
	logger   zerolog.Logger

	mu     sync.RWMutex
	state  lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnectionManager builds one pool per config. Chains are fixed for the
// manager's lifetime. Observers receive every pool event.
func NewConnectionManager(
	configs []rpcpool.PoolConfig,
	opts Options,
	logger zerolog.Logger,
	observers ...rpcpool.Observer,
) (*ConnectionManager, error) {
	if len(configs) == 0 {
		return nil, chainerrors.NewConfigError("", "at least one chain is required")
	}
	opts = opts.withDefaults()

	var observer rpcpool.Observer = rpcpool.NopObserver{}
	if len(observers) > 0 {
		observer = rpcpool.Observers(observers)
	}

	pools := make(map[string]*rpcpool.ChainPool, len(configs))
	chainIDs := make([]string, 0, len(configs))
	ordered := make([]*rpcpool.ChainPool, 0, len(configs))
	for _, cfg := range configs {
		if _, dup := pools[cfg.ChainID]; dup {
			return nil, chainerrors.NewConfigError(cfg.ChainID, "duplicate chain id")
		}
		pool, err := rpcpool.NewChainPool(cfg, opts.MaxFailures, observer, logger)
		if err != nil {
			return nil, err
		}
		pools[cfg.ChainID] = pool
		chainIDs = append(chainIDs, cfg.ChainID)
		ordered = append(ordered, pool)
	}
	sort.Strings(chainIDs)

	monitor := rpcpool.NewHealthMonitor(ordered, opts.HealthCheckInterval, opts.HealthCheckTimeout, logger)
	monitor.SetHealthChecker(opts.HealthChecker)

	return &ConnectionManager{
		pools:    pools,
		chainIDs: chainIDs,
		executor: rpcpool.NewExecutor(opts.RequestTimeout, logger),
		monitor:  monitor,
		opts:     opts,
		logger:   logger.With().Str("component", "connection_manager").Logger(),
	}, nil
}

// Start binds an initial client for every chain, runs one health round over
// every pool and launches the health loop. Chains with no endpoint passing
// that round start degraded. Calling Start on a
// running manager is a no-op; after Stop it returns ErrManagerStopped.
// The health loop also ends when ctx is cancelled.
func (m *ConnectionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning:
		return nil
	case stateStopped:
		return chainerrors.ErrManagerStopped
	}

	m.logger.Info().
		Int("chains", len(m.pools)).
		Dur("health_check_interval", m.opts.HealthCheckInterval).
		Dur("request_timeout", m.opts.RequestTimeout).
		Int("max_failures", m.opts.MaxFailures).
		Msg("starting connection manager")

	var g errgroup.Group
	for _, pool := range m.pools {
		g.Go(func() error {
			pool.BindInitial()
			return nil
		})
	}
	_ = g.Wait()

	// Most transports dial lazily; a bound client has not talked to its node yet.
	m.monitor.CheckAll(ctx)

	degraded := 0
	for _, pool := range m.pools {
		if pool.Snapshot().Degraded {
			degraded++
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = stateRunning

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor.Run(loopCtx)
	}()

	m.logger.Info().
		Int("degraded_chains", degraded).
		Msg("connection manager started")
	return nil
}

// Stop cancels the health loop, waits for it and releases every client.
// It is safe to call in any state and more than once.
func (m *ConnectionManager) Stop() {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return
	}
	m.state = stateStopped
	cancel := m.cancel
	m.mu.Unlock()

	m.logger.Info().Msg("stopping connection manager")
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	for _, pool := range m.pools {
		pool.Close()
	}
	m.logger.Info().Msg("connection manager stopped")
}

// CheckNow runs one health check round over every chain and waits for it.
func (m *ConnectionManager) CheckNow(ctx context.Context) error {
	if err := m.checkRunning(""); err != nil {
		return err
	}
	m.monitor.CheckAll(ctx)
	return nil
}

func (m *ConnectionManager) checkRunning(chainID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.state {
	case stateNew:
		return chainerrors.NewChainError(chainerrors.ErrCodeNotStarted, chainID, "connection manager is not started", nil)
	case stateStopped:
		return chainerrors.NewChainError(chainerrors.ErrCodeStopped, chainID, "connection manager is stopped", nil)
	}
	return nil
}

func (m *ConnectionManager) poolFor(chainID string) (*rpcpool.ChainPool, error) {
	if err := m.checkRunning(chainID); err != nil {
		return nil, err
	}
	pool, ok := m.pools[chainID]
	if !ok {
		return nil, chainerrors.NewUnknownChainError(chainID)
	}
	return pool, nil
}

// GetBalance returns the native balance of address on chainID
func (m *ConnectionManager) GetBalance(ctx context.Context, chainID, address string) (*big.Int, error) {
	pool, err := m.poolFor(chainID)
	if err != nil {
		return nil, err
	}
	return rpcpool.Execute(ctx, m.executor, pool, "get_balance", func(ctx context.Context, c rpcpool.Client) (*big.Int, error) {
		return c.GetBalance(ctx, address)
	})
}

// GetNonce returns the next nonce of address on chainID
func (m *ConnectionManager) GetNonce(ctx context.Context, chainID, address string) (uint64, error) {
	pool, err := m.poolFor(chainID)
	if err != nil {
		return 0, err
	}
	return rpcpool.Execute(ctx, m.executor, pool, "get_nonce", func(ctx context.Context, c rpcpool.Client) (uint64, error) {
		return c.GetNonce(ctx, address)
	})
}

// GetGasPrice returns the suggested fee unit price on chainID
func (m *ConnectionManager) GetGasPrice(ctx context.Context, chainID string) (*big.Int, error) {
	pool, err := m.poolFor(chainID)
	if err != nil {
		return nil, err
	}
	return rpcpool.Execute(ctx, m.executor, pool, "get_gas_price", func(ctx context.Context, c rpcpool.Client) (*big.Int, error) {
		return c.GetGasPrice(ctx)
	})
}

// SubmitRawTransaction broadcasts a signed transaction and returns its hash or signature
func (m *ConnectionManager) SubmitRawTransaction(ctx context.Context, chainID string, raw []byte) (string, error) {
	pool, err := m.poolFor(chainID)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", chainerrors.NewValidationError(chainID, "raw transaction is empty")
	}
	return rpcpool.Execute(ctx, m.executor, pool, "submit_raw_transaction", func(ctx context.Context, c rpcpool.Client) (string, error) {
		return c.SubmitRawTransaction(ctx, raw)
	})
}

// GetBlockHeight returns the latest block height on chainID
func (m *ConnectionManager) GetBlockHeight(ctx context.Context, chainID string) (uint64, error) {
	pool, err := m.poolFor(chainID)
	if err != nil {
		return 0, err
	}
	return rpcpool.Execute(ctx, m.executor, pool, "get_block_height", func(ctx context.Context, c rpcpool.Client) (uint64, error) {
		return c.GetBlockHeight(ctx)
	})
}

// Health returns a snapshot of chainID's pool. It works in any lifecycle state.
func (m *ConnectionManager) Health(chainID string) (rpcpool.PoolHealthSnapshot, error) {
	pool, ok := m.pools[chainID]
	if !ok {
		return rpcpool.PoolHealthSnapshot{}, chainerrors.NewUnknownChainError(chainID)
	}
	return pool.Snapshot(), nil
}

// HealthAll returns a snapshot of every pool ordered by chain id
func (m *ConnectionManager) HealthAll() []rpcpool.PoolHealthSnapshot {
	snaps := make([]rpcpool.PoolHealthSnapshot, 0, len(m.chainIDs))
	for _, id := range m.chainIDs {
		snaps = append(snaps, m.pools[id].Snapshot())
	}
	return snaps
}

// Chains returns the configured chain ids in sorted order
func (m *ConnectionManager) Chains() []string {
	return append([]string(nil), m.chainIDs...)
}

// Running reports whether Start succeeded and Stop was not called yet
func (m *ConnectionManager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateRunning
}
