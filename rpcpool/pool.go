package rpcpool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	chainerrors "github.com/pushchain/chainconn/errors"
)

// DefaultMaxFailures is the consecutive failure count at which an endpoint is unhealthy
const DefaultMaxFailures = 3

// ChainPool holds the ordered endpoints of one chain and the client bound to
// the active one. State changes happen under mu; network calls never do.
type ChainPool struct {
	chainID     string
	name        string
	symbol      string
	endpoints   []*Endpoint
	factory     ClientFactory
	checker     HealthChecker
	maxFailures int
	observer    Observer
	logger      zerolog.Logger

	mu          sync.Mutex
	activeIndex int
	client      Client
	closed      bool
}

// NewChainPool validates cfg and builds a pool with endpoints sorted by
// ascending priority. Ties keep configuration order.
func NewChainPool(cfg PoolConfig, maxFailures int, observer Observer, logger zerolog.Logger) (*ChainPool, error) {
	if cfg.ChainID == "" {
		return nil, chainerrors.NewConfigError("", "chain id is required")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, chainerrors.NewConfigError(cfg.ChainID, "at least one endpoint is required")
	}
	if cfg.Factory == nil {
		return nil, chainerrors.NewConfigError(cfg.ChainID, "client factory is required")
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if observer == nil {
		observer = NopObserver{}
	}

	seen := make(map[string]struct{}, len(cfg.Endpoints))
	endpoints := make([]*Endpoint, 0, len(cfg.Endpoints))
	for _, ec := range cfg.Endpoints {
		if ec.URL == "" {
			return nil, chainerrors.NewConfigError(cfg.ChainID, "endpoint url is empty")
		}
		if _, dup := seen[ec.URL]; dup {
			return nil, chainerrors.NewConfigError(cfg.ChainID, "duplicate endpoint url "+RedactURL(ec.URL))
		}
		seen[ec.URL] = struct{}{}
		endpoints = append(endpoints, NewEndpoint(ec.URL, ec.Priority))
	}
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Priority < endpoints[j].Priority
	})

	// keys on one provider host redact to the same label
	labels := make(map[string]int, len(endpoints))
	for i, ep := range endpoints {
		labels[ep.Label]++
		if labels[ep.Label] > 1 {
			ep.Label = fmt.Sprintf("%s#%d", ep.Label, i)
		}
	}

	return &ChainPool{
		chainID:     cfg.ChainID,
		name:        cfg.Name,
		symbol:      cfg.Symbol,
		endpoints:   endpoints,
		factory:     cfg.Factory,
		checker:     cfg.HealthChecker,
		maxFailures: maxFailures,
		observer:    observer,
		logger:      logger.With().Str("component", "rpc_pool").Str("chain_id", cfg.ChainID).Logger(),
	}, nil
}

// ChainID returns the chain this pool serves
func (p *ChainPool) ChainID() string {
	return p.chainID
}

// Len returns the number of endpoints
func (p *ChainPool) Len() int {
	return len(p.endpoints)
}

// current returns the active index and the bound client, which may be nil.
func (p *ChainPool) current() (int, Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeIndex, p.client
}

// preferredIndex returns the best ranked healthy endpoint, or 0 if none is healthy.
func (p *ChainPool) preferredIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ep := range p.endpoints {
		if ep.Healthy(p.maxFailures) {
			return i
		}
	}
	return 0
}

// nextCandidate returns the next index after from, wrapping once, that is
// not marked in tried. It returns -1 when every endpoint has been tried.
func (p *ChainPool) nextCandidate(from int, tried []bool) int {
	n := len(p.endpoints)
	for step := 1; step < n; step++ {
		idx := (from + step) % n
		if !tried[idx] {
			return idx
		}
	}
	return -1
}

func (p *ChainPool) markFailure(idx int, err error) {
	p.mu.Lock()
	ep := p.endpoints[idx]
	ep.recordFailure(err)
	failures := ep.ConsecutiveFailures
	p.mu.Unlock()

	p.logger.Debug().
		Str("url", ep.Label).
		Int("consecutive_failures", failures).
		Err(err).
		Msg("endpoint call failed")
}

// markSuccess resets the endpoint's failure count. If idx is not the active
// endpoint, or the pool has no bound client, client is adopted and idx
// promoted. It reports whether the pool took ownership of client.
func (p *ChainPool) markSuccess(idx int, latency time.Duration, client Client, trigger Trigger) bool {
	p.mu.Lock()
	p.endpoints[idx].recordSuccess(latency)
	if p.closed || client == nil || (idx == p.activeIndex && p.client != nil) {
		p.mu.Unlock()
		return false
	}
	old, event := p.swapLocked(idx, client, trigger, "")
	p.mu.Unlock()

	p.afterSwap(old, event)
	return true
}

// dial constructs a client for endpoint idx. A constructor error is recorded
// as an endpoint failure.
func (p *ChainPool) dial(idx int) (Client, error) {
	url := p.endpoints[idx].URL
	client, err := p.factory(url)
	if err == nil && client == nil {
		err = chainerrors.NewInternalError(p.chainID, "client factory returned nil client", nil)
	}
	if err != nil {
		err = chainerrors.NewEndpointError(p.chainID, p.endpoints[idx].Label, err)
		p.markFailure(idx, err)
		return nil, err
	}
	return client, nil
}

// acquire returns a client bound to idx, dialing and binding one when the
// pool is not already bound there.
func (p *ChainPool) acquire(idx int, trigger Trigger, reason error) (Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, chainerrors.ErrManagerStopped
	}
	if p.activeIndex == idx && p.client != nil {
		client := p.client
		p.mu.Unlock()
		return client, nil
	}
	p.mu.Unlock()

	client, err := p.dial(idx)
	if err != nil {
		return nil, err
	}
	return p.bind(idx, client, trigger, reason)
}

// bind makes client the pool's client for idx. If another goroutine bound idx
// first, client is closed and the existing one returned.
func (p *ChainPool) bind(idx int, client Client, trigger Trigger, reason error) (Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.closeClient(client)
		return nil, chainerrors.ErrManagerStopped
	}
	if p.activeIndex == idx && p.client != nil {
		existing := p.client
		p.mu.Unlock()
		p.closeClient(client)
		return existing, nil
	}
	reasonText := ""
	if reason != nil {
		reasonText = reason.Error()
	}
	old, event := p.swapLocked(idx, client, trigger, reasonText)
	p.mu.Unlock()

	p.afterSwap(old, event)
	return client, nil
}

// BindInitial binds the first endpoint whose client can be constructed,
// starting from the best ranked healthy one. No probe is made.
func (p *ChainPool) BindInitial() bool {
	start := p.preferredIndex()
	tried := make([]bool, len(p.endpoints))
	for idx := start; idx >= 0; idx = p.nextCandidate(idx, tried) {
		tried[idx] = true
		if _, err := p.acquire(idx, TriggerStartup, nil); err == nil {
			return true
		}
	}
	p.logger.Warn().Msg("no endpoint could be bound, pool starts degraded")
	return false
}

// release drops the bound client, leaving the pool degraded.
func (p *ChainPool) release(reason error) {
	p.mu.Lock()
	if p.client == nil {
		p.mu.Unlock()
		return
	}
	old := p.client
	p.client = nil
	event := FailoverEvent{
		ChainID: p.chainID,
		FromURL: p.endpoints[p.activeIndex].Label,
		Trigger: TriggerDegraded,
		At:      time.Now(),
	}
	if reason != nil {
		event.Reason = p.redact(reason.Error())
	}
	p.mu.Unlock()

	p.logger.Error().
		Str("url", event.FromURL).
		Str("reason", event.Reason).
		Msg("no endpoint answered, pool is degraded")
	p.closeClient(old)
	p.observer.OnFailover(event)
}

// Close releases the bound client. Later binds are refused.
func (p *ChainPool) Close() {
	p.mu.Lock()
	p.closed = true
	old := p.client
	p.client = nil
	p.mu.Unlock()

	p.closeClient(old)
}

// swapLocked replaces the bound client. The caller holds mu and must pass the
// results to afterSwap once mu is released.
func (p *ChainPool) swapLocked(idx int, client Client, trigger Trigger, reason string) (Client, *FailoverEvent) {
	old := p.client
	fromURL := ""
	if old != nil {
		fromURL = p.endpoints[p.activeIndex].Label
	}
	p.activeIndex = idx
	p.client = client

	if trigger == TriggerStartup {
		return old, nil
	}
	return old, &FailoverEvent{
		ChainID: p.chainID,
		FromURL: fromURL,
		ToURL:   p.endpoints[idx].Label,
		Trigger: trigger,
		Reason:  p.redact(reason),
		At:      time.Now(),
	}
}

func (p *ChainPool) afterSwap(old Client, event *FailoverEvent) {
	p.closeClient(old)
	if event == nil {
		return
	}
	p.logger.Warn().
		Str("from_url", event.FromURL).
		Str("to_url", event.ToURL).
		Str("trigger", string(event.Trigger)).
		Str("reason", event.Reason).
		Msg("switched active endpoint")
	p.observer.OnFailover(*event)
}

// redact masks every endpoint URL of the pool that appears in text.
func (p *ChainPool) redact(text string) string {
	for _, ep := range p.endpoints {
		text = ep.redact(text)
	}
	return text
}

func (p *ChainPool) closeClient(client Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to close client")
	}
}

// Snapshot returns a read-only view of the pool's health.
func (p *ChainPool) Snapshot() PoolHealthSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.endpoints[p.activeIndex]
	snap := PoolHealthSnapshot{
		ChainID:             p.chainID,
		Name:                p.name,
		Symbol:              p.symbol,
		ActiveURL:           active.Label,
		Degraded:            p.client == nil,
		Healthy:             p.client != nil && active.Healthy(p.maxFailures),
		LatencyMs:           active.Latency.Milliseconds(),
		ConsecutiveFailures: active.ConsecutiveFailures,
		TotalEndpoints:      len(p.endpoints),
		Endpoints:           make([]EndpointStatus, 0, len(p.endpoints)),
	}
	for i, ep := range p.endpoints {
		status := ep.status(i == p.activeIndex, p.maxFailures)
		if status.Healthy {
			snap.HealthyCount++
		}
		snap.Endpoints = append(snap.Endpoints, status)
	}
	return snap
}
