package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evmChain(urls ...string) ChainSpecificConfig {
	return ChainSpecificConfig{Name: "Ethereum", Symbol: "ETH", VM: VMEVM, RPCURLs: urls, EVMChainID: 1}
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name        string
		config      *Config
		expectError bool
		errorMsg    string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "Valid config with all fields",
			config: &Config{
				LogLevel:        2,
				LogFormat:       "json",
				QueryServerPort: 9090,
				MetricsEnabled:  true,
				RPCPool: RPCPoolConfig{
					HealthCheckIntervalSeconds: 15,
					HealthCheckTimeoutSeconds:  2,
					RequestTimeoutSeconds:      4,
					UnhealthyThreshold:         5,
				},
				ChainConfigs: map[string]ChainSpecificConfig{"eip155:1": evmChain("https://a")},
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Second, cfg.RPCPool.HealthCheckInterval())
				assert.Equal(t, 2*time.Second, cfg.RPCPool.HealthCheckTimeout())
				assert.Equal(t, 4*time.Second, cfg.RPCPool.RequestTimeout())
				assert.Equal(t, 5, cfg.RPCPool.UnhealthyThreshold)
			},
		},
		{
			name: "Invalid log level (negative)",
			config: &Config{
				LogLevel:  -1,
				LogFormat: "json",
			},
			expectError: true,
			errorMsg:    "log level must be between 0 and 5",
		},
		{
			name: "Invalid log level (too high)",
			config: &Config{
				LogLevel:  6,
				LogFormat: "json",
			},
			expectError: true,
			errorMsg:    "log level must be between 0 and 5",
		},
		{
			name: "Invalid log format",
			config: &Config{
				LogLevel:  2,
				LogFormat: "xml",
			},
			expectError: true,
			errorMsg:    "log format must be 'json' or 'console'",
		},
		{
			name: "Config with defaults applied",
			config: &Config{
				LogLevel:  2,
				LogFormat: "console",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.QueryServerPort)
				assert.Equal(t, 30*time.Second, cfg.RPCPool.HealthCheckInterval())
				assert.Equal(t, 5*time.Second, cfg.RPCPool.HealthCheckTimeout())
				assert.Equal(t, 10*time.Second, cfg.RPCPool.RequestTimeout())
				assert.Equal(t, 3, cfg.RPCPool.UnhealthyThreshold)
				assert.Equal(t, 604800, cfg.JournalRetentionSeconds)
				assert.Equal(t, 3600, cfg.JournalCleanupIntervalSeconds)
				assert.NotEmpty(t, cfg.ChainConfigs, "embedded chain configs are used")
			},
		},
		{
			name: "Negative pool setting",
			config: &Config{
				LogLevel:     1,
				LogFormat:    "json",
				RPCPool:      RPCPoolConfig{RequestTimeoutSeconds: -1},
				ChainConfigs: map[string]ChainSpecificConfig{"eip155:1": evmChain("https://a")},
			},
			expectError: true,
			errorMsg:    "must not be negative",
		},
		{
			name: "Unknown vm",
			config: &Config{
				LogLevel:  1,
				LogFormat: "json",
				ChainConfigs: map[string]ChainSpecificConfig{
					"cosmos:push-1": {VM: "cosmos", RPCURLs: []string{"https://a"}},
				},
			},
			expectError: true,
			errorMsg:    "vm must be 'evm' or 'svm'",
		},
		{
			name: "Chain without endpoints",
			config: &Config{
				LogLevel:     1,
				LogFormat:    "json",
				ChainConfigs: map[string]ChainSpecificConfig{"eip155:1": evmChain()},
			},
			expectError: true,
			errorMsg:    "at least one rpc url is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateConfig(tc.config)

			if tc.expectError {
				assert.Error(t, err)
				if tc.errorMsg != "" {
					assert.Contains(t, err.Error(), tc.errorMsg)
				}
			} else {
				assert.NoError(t, err)
				if tc.validate != nil {
					tc.validate(t, tc.config)
				}
			}
		})
	}
}

func TestResolvedEndpoints(t *testing.T) {
	chain := ChainSpecificConfig{
		VM:        VMEVM,
		RPCURLs:   []string{"https://primary", "https://secondary"},
		Endpoints: []EndpointConfig{{URL: "https://archive", Priority: 10}},
	}

	assert.Equal(t, []EndpointConfig{
		{URL: "https://primary", Priority: 0},
		{URL: "https://secondary", Priority: 1},
		{URL: "https://archive", Priority: 10},
	}, chain.ResolvedEndpoints())
}

func TestGetChainConfig(t *testing.T) {
	cfg := &Config{ChainConfigs: map[string]ChainSpecificConfig{"eip155:1": evmChain("https://a")}}

	chain, err := cfg.GetChainConfig("eip155:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), chain.EVMChainID)

	_, err = cfg.GetChainConfig("eip155:10")
	assert.Error(t, err)

	_, err = (&Config{}).GetChainConfig("eip155:1")
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("Save and load valid config", func(t *testing.T) {
		cfg := &Config{
			LogLevel:        3,
			LogFormat:       "json",
			QueryServerPort: 8888,
			DatabasePath:    filepath.Join(tempDir, "failovers.db"),
			RPCPool:         RPCPoolConfig{HealthCheckIntervalSeconds: 12},
			ChainConfigs: map[string]ChainSpecificConfig{
				"eip155:1": evmChain("https://a", "https://b"),
				"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp": {
					VM:             VMSVM,
					RPCURLs:        []string{"https://api.mainnet-beta.solana.com"},
					SVMGenesisHash: "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
				},
			},
		}

		require.NoError(t, Save(cfg, tempDir))

		configPath := filepath.Join(tempDir, configSubdir, configFileName)
		_, err := os.Stat(configPath)
		assert.NoError(t, err)

		loadedCfg, err := Load(tempDir)
		require.NoError(t, err)

		assert.Equal(t, cfg.LogLevel, loadedCfg.LogLevel)
		assert.Equal(t, cfg.QueryServerPort, loadedCfg.QueryServerPort)
		assert.Equal(t, cfg.DatabasePath, loadedCfg.DatabasePath)
		assert.Equal(t, cfg.RPCPool, loadedCfg.RPCPool)
		assert.Equal(t, cfg.ChainConfigs, loadedCfg.ChainConfigs, "chain id keys keep their case")
	})

	t.Run("Environment overrides file values", func(t *testing.T) {
		t.Setenv("CHAINCONN_LOG_LEVEL", "0")
		t.Setenv("CHAINCONN_METRICS_ENABLED", "true")
		t.Setenv("CHAINCONN_RPC_POOL_REQUEST_TIMEOUT_SECONDS", "3")

		loadedCfg, err := Load(tempDir)
		require.NoError(t, err)

		assert.Equal(t, 0, loadedCfg.LogLevel)
		assert.True(t, loadedCfg.MetricsEnabled)
		assert.Equal(t, 3*time.Second, loadedCfg.RPCPool.RequestTimeout())
		assert.Equal(t, 12, loadedCfg.RPCPool.HealthCheckIntervalSeconds)
	})

	t.Run("Invalid environment override is rejected", func(t *testing.T) {
		t.Setenv("CHAINCONN_LOG_FORMAT", "xml")

		_, err := Load(tempDir)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("Save invalid config", func(t *testing.T) {
		cfg := &Config{
			LogLevel:  -1,
			LogFormat: "json",
		}

		err := Save(cfg, tempDir)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("Load from non-existent file", func(t *testing.T) {
		_, err := Load(filepath.Join(tempDir, "non_existent"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("Load invalid JSON", func(t *testing.T) {
		configDir := filepath.Join(tempDir, "invalid", configSubdir)
		require.NoError(t, os.MkdirAll(configDir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(configDir, configFileName), []byte("{invalid json}"), 0o600))

		_, err := Load(filepath.Join(tempDir, "invalid"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal config")
	})
}

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, "console", cfg.LogFormat)
	for chainID, chain := range cfg.ChainConfigs {
		assert.NotEmpty(t, chain.ResolvedEndpoints(), chainID)
	}
}
