package rpcpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(pools ...*ChainPool) *HealthMonitor {
	return NewHealthMonitor(pools, time.Hour, 50*time.Millisecond, zerolog.Nop())
}

func TestNewHealthMonitor_Defaults(t *testing.T) {
	monitor := NewHealthMonitor(nil, 0, 0, zerolog.Nop())

	assert.Equal(t, DefaultHealthCheckInterval, monitor.interval)
	assert.Equal(t, DefaultHealthCheckTimeout, monitor.timeout)
	assert.IsType(t, BlockHeightChecker{}, monitor.healthChecker)
}

func TestHealthMonitor_SetHealthChecker(t *testing.T) {
	monitor := newTestMonitor()

	checker := &MockHealthChecker{}
	monitor.SetHealthChecker(checker)
	assert.Equal(t, checker, monitor.healthChecker)

	monitor.SetHealthChecker(nil)
	assert.Equal(t, checker, monitor.healthChecker, "nil keeps the current checker")
}

func TestHealthMonitor_HealthyActiveIsProbedOnce(t *testing.T) {
	backend := newFakeBackend()
	pool := newTestPool(t, backend, nil, "http://a", "http://b")
	require.True(t, pool.BindInitial())

	newTestMonitor(pool).CheckAll(context.Background())

	assert.Equal(t, 1, backend.callCount("http://a"))
	assert.Zero(t, backend.dialCount("http://b"))
	assert.Equal(t, "http://a", activeURL(pool))
}

func TestHealthMonitor_FailedProbeAdvances(t *testing.T) {
	backend := newFakeBackend()
	backend.setFailing("http://a", true)
	observer := &recordingObserver{}
	pool := newTestPool(t, backend, observer, "http://a", "http://b", "http://c")
	require.True(t, pool.BindInitial())

	newTestMonitor(pool).CheckAll(context.Background())

	assert.Equal(t, "http://b", activeURL(pool))
	assert.Equal(t, 1, failuresOf(pool, "http://a"))
	assert.Zero(t, backend.dialCount("http://c"))

	events := observer.failoverEvents()
	require.Len(t, events, 1)
	assert.Equal(t, TriggerHealthCheck, events[0].Trigger)
	assert.Equal(t, "http://a", events[0].FromURL)
	assert.Equal(t, "http://b", events[0].ToURL)
}

func TestHealthMonitor_DegradesAndRecovers(t *testing.T) {
	backend := newFakeBackend()
	backend.setFailing("http://a", true)
	backend.setFailing("http://b", true)
	observer := &recordingObserver{}
	pool := newTestPool(t, backend, observer, "http://a", "http://b")
	require.True(t, pool.BindInitial())
	monitor := newTestMonitor(pool)

	monitor.CheckAll(context.Background())

	snap := pool.Snapshot()
	assert.True(t, snap.Degraded)
	assert.False(t, snap.Healthy)
	assert.Equal(t, 1, failuresOf(pool, "http://a"))
	assert.Equal(t, 1, failuresOf(pool, "http://b"))

	// degraded is not terminal: every endpoint is retried from the top
	backend.setFailing("http://b", false)
	monitor.CheckAll(context.Background())

	snap = pool.Snapshot()
	assert.False(t, snap.Degraded)
	assert.True(t, snap.Healthy)
	assert.Equal(t, "http://b", snap.ActiveURL)
	assert.Equal(t, 2, failuresOf(pool, "http://a"))
	assert.Zero(t, failuresOf(pool, "http://b"))

	events := observer.failoverEvents()
	require.Len(t, events, 2)
	assert.Equal(t, TriggerDegraded, events[0].Trigger)
	assert.Empty(t, events[1].FromURL)
	assert.Equal(t, "http://b", events[1].ToURL)
}

func TestHealthMonitor_FailsBackToPreferredEndpoint(t *testing.T) {
	backend := newFakeBackend()
	backend.setFailing("http://a", true)
	observer := &recordingObserver{}
	pool := newTestPool(t, backend, observer, "http://a", "http://b")
	require.True(t, pool.BindInitial())
	monitor := newTestMonitor(pool)

	monitor.CheckAll(context.Background())
	require.Equal(t, "http://b", activeURL(pool))

	// a still down: b stays active, a keeps accumulating failures
	monitor.CheckAll(context.Background())
	assert.Equal(t, "http://b", activeURL(pool))
	assert.Equal(t, 2, failuresOf(pool, "http://a"))

	backend.setFailing("http://a", false)
	monitor.CheckAll(context.Background())

	assert.Equal(t, "http://a", activeURL(pool))
	assert.Zero(t, failuresOf(pool, "http://a"))

	events := observer.failoverEvents()
	require.Len(t, events, 2)
	assert.Equal(t, TriggerFailBack, events[1].Trigger)
	assert.Equal(t, "http://b", events[1].FromURL)
	assert.Equal(t, "http://a", events[1].ToURL)
}

func TestHealthMonitor_ProbeTimeoutIsFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.setHanging("http://a", true)
	pool := newTestPool(t, backend, nil, "http://a", "http://b")
	require.True(t, pool.BindInitial())

	start := time.Now()
	newTestMonitor(pool).CheckAll(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, failuresOf(pool, "http://a"))
	assert.Equal(t, "http://b", activeURL(pool))
}

func TestHealthMonitor_ShutdownDoesNotCountAsFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.setHanging("http://a", true)
	observer := &recordingObserver{}
	pool := newTestPool(t, backend, observer, "http://a", "http://b")
	require.True(t, pool.BindInitial())
	monitor := NewHealthMonitor([]*ChainPool{pool}, time.Hour, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	monitor.CheckAll(ctx)

	assert.Zero(t, failuresOf(pool, "http://a"))
	assert.Equal(t, "http://a", activeURL(pool))
	assert.False(t, pool.Snapshot().Degraded)
	assert.Zero(t, backend.dialCount("http://b"))
	assert.Empty(t, observer.failoverEvents())
}

func TestHealthMonitor_ChainIsolation(t *testing.T) {
	backend := newFakeBackend()
	backend.setFailing("http://eth-a", true)
	backend.setFailing("http://eth-b", true)

	eth, err := NewChainPool(PoolConfig{
		ChainID:   "eip155:1",
		Endpoints: []EndpointConfig{{URL: "http://eth-a"}, {URL: "http://eth-b", Priority: 1}},
		Factory:   backend.factory(),
	}, DefaultMaxFailures, nil, zerolog.Nop())
	require.NoError(t, err)
	sol, err := NewChainPool(PoolConfig{
		ChainID:   "solana:mainnet",
		Endpoints: []EndpointConfig{{URL: "http://sol-a"}, {URL: "http://sol-b", Priority: 1}},
		Factory:   backend.factory(),
	}, DefaultMaxFailures, nil, zerolog.Nop())
	require.NoError(t, err)
	require.True(t, eth.BindInitial())
	require.True(t, sol.BindInitial())

	newTestMonitor(eth, sol).CheckAll(context.Background())

	assert.True(t, eth.Snapshot().Degraded)
	solSnap := sol.Snapshot()
	assert.True(t, solSnap.Healthy)
	assert.Equal(t, "http://sol-a", solSnap.ActiveURL)
	assert.Zero(t, backend.dialCount("http://sol-b"))
}

func TestHealthMonitor_HangingChainDoesNotDelayOthers(t *testing.T) {
	backend := newFakeBackend()
	backend.setHanging("http://eth-a", true)
	backend.setHanging("http://eth-b", true)

	eth, err := NewChainPool(PoolConfig{
		ChainID:   "eip155:10",
		Endpoints: []EndpointConfig{{URL: "http://eth-a"}, {URL: "http://eth-b", Priority: 1}},
		Factory:   backend.factory(),
	}, DefaultMaxFailures, nil, zerolog.Nop())
	require.NoError(t, err)
	sol := newTestPool(t, backend, nil, "http://sol-a")
	require.True(t, eth.BindInitial())
	require.True(t, sol.BindInitial())
	monitor := NewHealthMonitor([]*ChainPool{eth, sol}, time.Hour, 300*time.Millisecond, zerolog.Nop())

	start := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.CheckAll(context.Background())
	}()

	require.Eventually(t, func() bool {
		return backend.callCount("http://sol-a") == 1
	}, 150*time.Millisecond, 5*time.Millisecond, "sol check must not wait for eth")
	assert.Less(t, sol.Snapshot().LatencyMs, int64(100))

	<-done
	assert.GreaterOrEqual(t, time.Since(start), 600*time.Millisecond, "eth waits out the timeout on both endpoints")
	assert.True(t, eth.Snapshot().Degraded)
	assert.True(t, sol.Snapshot().Healthy)
}

func TestHealthMonitor_UsesConfiguredChecker(t *testing.T) {
	backend := newFakeBackend()
	pool := newTestPool(t, backend, nil, "http://a", "http://b")
	require.True(t, pool.BindInitial())

	checker := &MockHealthChecker{}
	checker.On("CheckHealth", mock.Anything, mock.Anything).Return(errors.New("node is syncing")).Once()
	checker.On("CheckHealth", mock.Anything, mock.Anything).Return(nil).Once()

	monitor := newTestMonitor(pool)
	monitor.SetHealthChecker(checker)
	monitor.CheckAll(context.Background())

	checker.AssertExpectations(t)
	checker.AssertNumberOfCalls(t, "CheckHealth", 2)
	assert.Equal(t, "http://b", activeURL(pool))
	assert.Zero(t, backend.callCount("http://a"), "the fake client is not called by the mock checker")
}

func TestHealthMonitor_PoolCheckerOverridesMonitorChecker(t *testing.T) {
	backend := newFakeBackend()
	poolChecker := &MockHealthChecker{}
	poolChecker.On("CheckHealth", mock.Anything, mock.Anything).Return(nil).Once()

	pool, err := NewChainPool(PoolConfig{
		ChainID:       "eip155:137",
		Endpoints:     []EndpointConfig{{URL: "http://a"}},
		Factory:       backend.factory(),
		HealthChecker: poolChecker,
	}, DefaultMaxFailures, nil, zerolog.Nop())
	require.NoError(t, err)
	require.True(t, pool.BindInitial())

	monitorChecker := &MockHealthChecker{}
	monitor := newTestMonitor(pool)
	monitor.SetHealthChecker(monitorChecker)
	monitor.CheckAll(context.Background())

	poolChecker.AssertExpectations(t)
	monitorChecker.AssertNotCalled(t, "CheckHealth", mock.Anything, mock.Anything)
}

func TestHealthMonitor_RunWaitsOneInterval(t *testing.T) {
	backend := newFakeBackend()
	pool := newTestPool(t, backend, nil, "http://a")
	require.True(t, pool.BindInitial())
	monitor := NewHealthMonitor([]*ChainPool{pool}, 40*time.Millisecond, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, backend.callCount("http://a"), "no probe before the first interval")

	assert.Eventually(t, func() bool {
		return backend.callCount("http://a") >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop in time")
	}
}
