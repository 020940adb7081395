package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pushchain/chainconn/config"
)

// Set through -ldflags at build time
var (
	Version = "dev"
	Commit  = "unknown"
)

type rootFlags struct {
	home       string
	configFile string
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainconn"
	}
	return filepath.Join(home, ".chainconn")
}

func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "chainconnd",
		Short:         "Multi-chain RPC connection manager with health-checked failover",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.home, "home", defaultHome(), "directory holding config/chainconn_config.json")
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "explicit config file path (overrides --home)")

	InitRootCmd(rootCmd, flags)

	return rootCmd
}

// load reads the config selected by the persistent flags
func (f *rootFlags) load() (config.Config, error) {
	if f.configFile != "" {
		return config.LoadFile(f.configFile)
	}
	return config.Load(f.home)
}
