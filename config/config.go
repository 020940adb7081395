package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configSubdir   = "config"
	configFileName = "chainconn_config.json"

	// EnvPrefix prefixes environment overrides, e.g. CHAINCONN_LOG_LEVEL
	// or CHAINCONN_RPC_POOL_REQUEST_TIMEOUT_SECONDS.
	EnvPrefix = "CHAINCONN"
)

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}
	if cfg.QueryServerPort < 0 || cfg.QueryServerPort > 65535 {
		return fmt.Errorf("query server port must be between 1 and 65535")
	}

	// Set defaults for the failover journal
	if cfg.JournalRetentionSeconds == 0 {
		cfg.JournalRetentionSeconds = 7 * 24 * 3600
	}
	if cfg.JournalCleanupIntervalSeconds == 0 {
		cfg.JournalCleanupIntervalSeconds = 3600
	}

	// Set defaults for RPC pool config
	if cfg.RPCPool.HealthCheckIntervalSeconds == 0 {
		cfg.RPCPool.HealthCheckIntervalSeconds = 30
	}
	if cfg.RPCPool.HealthCheckTimeoutSeconds == 0 {
		cfg.RPCPool.HealthCheckTimeoutSeconds = 5
	}
	if cfg.RPCPool.RequestTimeoutSeconds == 0 {
		cfg.RPCPool.RequestTimeoutSeconds = 10
	}
	if cfg.RPCPool.UnhealthyThreshold == 0 {
		cfg.RPCPool.UnhealthyThreshold = 3
	}
	if cfg.RPCPool.HealthCheckIntervalSeconds < 0 || cfg.RPCPool.HealthCheckTimeoutSeconds < 0 ||
		cfg.RPCPool.RequestTimeoutSeconds < 0 || cfg.RPCPool.UnhealthyThreshold < 0 {
		return fmt.Errorf("rpc pool settings must not be negative")
	}

	// Initialize ChainConfigs if nil or empty
	if len(cfg.ChainConfigs) == 0 {
		var defaultCfg Config
		if err := json.Unmarshal(defaultConfigJSON, &defaultCfg); err == nil {
			cfg.ChainConfigs = defaultCfg.ChainConfigs
		} else {
			cfg.ChainConfigs = make(map[string]ChainSpecificConfig)
		}
	}

	for chainID, chain := range cfg.ChainConfigs {
		if chain.VM != VMEVM && chain.VM != VMSVM {
			return fmt.Errorf("chain %s: vm must be 'evm' or 'svm'", chainID)
		}
		if len(chain.RPCURLs) == 0 && len(chain.Endpoints) == 0 {
			return fmt.Errorf("chain %s: at least one rpc url is required", chainID)
		}
	}

	return nil
}

// applyEnvOverrides replaces scalar settings with CHAINCONN_* environment
// variables when present. Chain configs come from the file only.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	overrideInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	overrideInt("log_level", &cfg.LogLevel)
	if v.IsSet("log_format") {
		cfg.LogFormat = v.GetString("log_format")
	}
	if v.IsSet("log_sampler") {
		cfg.LogSampler = v.GetBool("log_sampler")
	}
	overrideInt("query_server_port", &cfg.QueryServerPort)
	if v.IsSet("metrics_enabled") {
		cfg.MetricsEnabled = v.GetBool("metrics_enabled")
	}
	if v.IsSet("database_path") {
		cfg.DatabasePath = v.GetString("database_path")
	}
	overrideInt("journal_retention_seconds", &cfg.JournalRetentionSeconds)
	overrideInt("journal_cleanup_interval_seconds", &cfg.JournalCleanupIntervalSeconds)
	overrideInt("rpc_pool.health_check_interval_seconds", &cfg.RPCPool.HealthCheckIntervalSeconds)
	overrideInt("rpc_pool.health_check_timeout_seconds", &cfg.RPCPool.HealthCheckTimeoutSeconds)
	overrideInt("rpc_pool.request_timeout_seconds", &cfg.RPCPool.RequestTimeoutSeconds)
	overrideInt("rpc_pool.unhealthy_threshold", &cfg.RPCPool.UnhealthyThreshold)
}

// Save writes the given config to <basePath>/config/chainconn_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := FilePath(basePath)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FilePath returns the config file location under basePath
func FilePath(basePath string) string {
	return filepath.Join(basePath, configSubdir, configFileName)
}

// Load reads the config from <basePath>/config/chainconn_config.json,
// applies environment overrides and defaults, and validates the result.
func Load(basePath string) (Config, error) {
	return LoadFile(FilePath(basePath))
}

// LoadFile is Load for an explicit file path
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	// encoding/json keeps chain id keys intact; viper would lowercase them
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
