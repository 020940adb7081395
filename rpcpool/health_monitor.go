package rpcpool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultHealthCheckInterval is the time between probe rounds
	DefaultHealthCheckInterval = 30 * time.Second
	// DefaultHealthCheckTimeout bounds a single probe
	DefaultHealthCheckTimeout = 5 * time.Second
)

// HealthMonitor periodically probes the active endpoint of every pool,
// moves pools off endpoints that stop answering and fails back to better
// ranked endpoints once they answer again.
type HealthMonitor struct {
	pools         []*ChainPool
	interval      time.Duration
	timeout       time.Duration
	logger        zerolog.Logger
	healthChecker HealthChecker
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(pools []*ChainPool, interval, timeout time.Duration, logger zerolog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	if timeout <= 0 {
		timeout = DefaultHealthCheckTimeout
	}
	return &HealthMonitor{
		pools:         pools,
		interval:      interval,
		timeout:       timeout,
		logger:        logger.With().Str("component", "health_monitor").Logger(),
		healthChecker: BlockHeightChecker{},
	}
}

// SetHealthChecker sets the health checker implementation
func (h *HealthMonitor) SetHealthChecker(checker HealthChecker) {
	if checker != nil {
		h.healthChecker = checker
	}
}

// Run probes all pools every interval until ctx is cancelled.
// The first round happens one interval after Run is called.
func (h *HealthMonitor) Run(ctx context.Context) {
	h.logger.Info().
		Dur("interval", h.interval).
		Dur("timeout", h.timeout).
		Int("pools", len(h.pools)).
		Msg("starting health monitor")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("health monitor stopping: context cancelled")
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// CheckAll runs one probe round over every pool concurrently and waits for it.
func (h *HealthMonitor) CheckAll(ctx context.Context) {
	h.logger.Debug().Msg("performing health checks on all pools")

	var wg sync.WaitGroup
	for _, pool := range h.pools {
		wg.Add(1)
		go func(p *ChainPool) {
			defer wg.Done()
			h.checkPool(ctx, p)
		}(pool)
	}

	wg.Wait()
	h.logger.Debug().Msg("health checks completed")
}

// checkPool probes the active endpoint and fails back on success. On failure,
// or when the pool is degraded, the remaining endpoints are probed in order
// and the first that answers is promoted. If none answers the pool degrades.
func (h *HealthMonitor) checkPool(ctx context.Context, pool *ChainPool) {
	tried := make([]bool, pool.Len())
	active, client := pool.current()

	var lastErr error
	start := 0
	if client != nil {
		tried[active] = true
		lastErr = h.probe(ctx, pool, active, client, TriggerHealthCheck, false)
		if lastErr == nil {
			h.failBack(ctx, pool, active)
			return
		}
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn().
			Str("chain_id", pool.chainID).
			Str("url", pool.endpoints[active].Label).
			Err(lastErr).
			Msg("active endpoint failed health check")
		start = pool.nextCandidate(active, tried)
	}

	for idx := start; idx >= 0; idx = pool.nextCandidate(idx, tried) {
		if ctx.Err() != nil {
			return
		}
		tried[idx] = true
		if err := h.probeCandidate(ctx, pool, idx, TriggerHealthCheck); err != nil {
			lastErr = err
			continue
		}
		return
	}

	if ctx.Err() != nil {
		return
	}
	pool.release(lastErr)
}

// failBack probes endpoints ranked above active and promotes the first that answers.
func (h *HealthMonitor) failBack(ctx context.Context, pool *ChainPool, active int) {
	for idx := 0; idx < active; idx++ {
		if ctx.Err() != nil {
			return
		}
		if err := h.probeCandidate(ctx, pool, idx, TriggerFailBack); err == nil {
			h.logger.Info().
				Str("chain_id", pool.chainID).
				Str("url", pool.endpoints[idx].Label).
				Msg("preferred endpoint recovered")
			return
		}
	}
}

// probeCandidate dials a fresh client for idx and probes it. On success the
// pool adopts the client; otherwise it is closed.
func (h *HealthMonitor) probeCandidate(ctx context.Context, pool *ChainPool, idx int, trigger Trigger) error {
	client, err := pool.dial(idx)
	if err != nil {
		return err
	}
	if err := h.probe(ctx, pool, idx, client, trigger, true); err != nil {
		pool.closeClient(client)
		return err
	}
	return nil
}

// probe checks one client and records the result on endpoint idx. A fresh
// client that answers is offered to the pool for promotion.
func (h *HealthMonitor) probe(ctx context.Context, pool *ChainPool, idx int, client Client, trigger Trigger, fresh bool) error {
	start := time.Now()
	checker := h.healthChecker
	if pool.checker != nil {
		checker = pool.checker
	}
	_, err := runAttempt(ctx, h.timeout, client, func(ctx context.Context, c Client) (struct{}, error) {
		return struct{}{}, checker.CheckHealth(ctx, c)
	})
	latency := time.Since(start)

	// a check cut short by shutdown says nothing about the endpoint
	if err != nil && ctx.Err() != nil {
		return err
	}

	url := pool.endpoints[idx].Label
	pool.observer.OnEndpointResult(pool.chainID, url, "health_check", latency, err)

	if err != nil {
		pool.markFailure(idx, err)
		return err
	}

	if !fresh {
		pool.markSuccess(idx, latency, nil, trigger)
	} else if !pool.markSuccess(idx, latency, client, trigger) {
		// idx was bound by another goroutine meanwhile
		pool.closeClient(client)
	}

	h.logger.Debug().
		Str("chain_id", pool.chainID).
		Str("url", url).
		Dur("latency", latency).
		Msg("endpoint health check passed")
	return nil
}
