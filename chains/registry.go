package chains

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/pushchain/chainconn/chains/evm"
	"github.com/pushchain/chainconn/chains/svm"
	"github.com/pushchain/chainconn/config"
	"github.com/pushchain/chainconn/rpcpool"
)

// ChainRegistry turns chain configuration into pool configs, choosing the
// client factory and health checker by VM type.
type ChainRegistry struct {
	logger    zerolog.Logger
	factories map[config.VM]rpcpool.ClientFactory
}

// NewChainRegistry creates a registry with the EVM and SVM client factories
func NewChainRegistry(logger zerolog.Logger) *ChainRegistry {
	return &ChainRegistry{
		logger: logger.With().Str("component", "chain_registry").Logger(),
		factories: map[config.VM]rpcpool.ClientFactory{
			config.VMEVM: evm.NewClientFactory(),
			config.VMSVM: svm.NewClientFactory(),
		},
	}
}

// SetFactory replaces the client factory used for a VM type
func (r *ChainRegistry) SetFactory(vm config.VM, factory rpcpool.ClientFactory) {
	r.factories[vm] = factory
}

// HealthCheckerFor returns the health checker for a chain based on its VM type
func HealthCheckerFor(chain config.ChainSpecificConfig) (rpcpool.HealthChecker, error) {
	switch chain.VM {
	case config.VMEVM:
		return evm.NewHealthChecker(chain.EVMChainID), nil
	case config.VMSVM:
		return svm.NewHealthChecker(chain.SVMGenesisHash), nil
	default:
		return nil, fmt.Errorf("unsupported VM type: %s", chain.VM)
	}
}

// CreatePoolConfig resolves one chain's configuration into a pool config
func (r *ChainRegistry) CreatePoolConfig(chainID string, chain config.ChainSpecificConfig) (rpcpool.PoolConfig, error) {
	factory, ok := r.factories[chain.VM]
	if !ok || factory == nil {
		return rpcpool.PoolConfig{}, fmt.Errorf("chain %s: unsupported VM type: %s", chainID, chain.VM)
	}
	checker, err := HealthCheckerFor(chain)
	if err != nil {
		return rpcpool.PoolConfig{}, fmt.Errorf("chain %s: %w", chainID, err)
	}

	resolved := chain.ResolvedEndpoints()
	endpoints := make([]rpcpool.EndpointConfig, len(resolved))
	for i, ep := range resolved {
		endpoints[i] = rpcpool.EndpointConfig{URL: ep.URL, Priority: ep.Priority}
	}

	r.logger.Debug().
		Str("chain_id", chainID).
		Str("vm", string(chain.VM)).
		Int("endpoints", len(endpoints)).
		Msg("creating pool config")

	return rpcpool.PoolConfig{
		ChainID:       chainID,
		Name:          chain.Name,
		Symbol:        chain.Symbol,
		Endpoints:     endpoints,
		Factory:       factory,
		HealthChecker: checker,
	}, nil
}

// BuildPoolConfigs resolves every configured chain, ordered by chain id
func (r *ChainRegistry) BuildPoolConfigs(cfg *config.Config) ([]rpcpool.PoolConfig, error) {
	if cfg == nil || len(cfg.ChainConfigs) == 0 {
		return nil, fmt.Errorf("no chain configs found")
	}

	chainIDs := make([]string, 0, len(cfg.ChainConfigs))
	for chainID := range cfg.ChainConfigs {
		chainIDs = append(chainIDs, chainID)
	}
	sort.Strings(chainIDs)

	out := make([]rpcpool.PoolConfig, 0, len(chainIDs))
	for _, chainID := range chainIDs {
		pc, err := r.CreatePoolConfig(chainID, cfg.ChainConfigs[chainID])
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, nil
}
