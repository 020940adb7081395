package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pushchain/chainconn/chains"
	"github.com/pushchain/chainconn/config"
	"github.com/pushchain/chainconn/core"
	"github.com/pushchain/chainconn/logger"
	"github.com/pushchain/chainconn/node"
	"github.com/pushchain/chainconn/rpcpool"
)

func InitRootCmd(rootCmd *cobra.Command, flags *rootFlags) {
	rootCmd.AddCommand(initCmd(flags))
	rootCmd.AddCommand(startCmd(flags))
	rootCmd.AddCommand(checkCmd(flags))
	rootCmd.AddCommand(versionCmd())
}

func initCmd(flags *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FilePath(flags.home)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			if err := config.Save(cfg, flags.home); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func startCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the connection manager, failover journal and query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := logger.Init(cfg)

			n, err := node.New(cfg, log, chains.NewChainRegistry(log))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return n.Run(ctx)
		},
	}
}

func checkCmd(flags *rootFlags) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Bind every chain, run one health check round and print pool health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			// logs go to stderr so stdout carries only the report
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			poolConfigs, err := chains.NewChainRegistry(log).BuildPoolConfigs(&cfg)
			if err != nil {
				return err
			}
			manager, err := core.NewConnectionManager(poolConfigs, node.ManagerOptions(cfg.RPCPool), log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			// Start runs one health round on every chain before returning
			if err := manager.Start(ctx); err != nil {
				return err
			}
			defer manager.Stop()

			snapshots := manager.HealthAll()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(snapshots); err != nil {
					return err
				}
			} else {
				printHealth(cmd, snapshots)
			}

			degraded := 0
			for _, snap := range snapshots {
				if snap.Degraded {
					degraded++
				}
			}
			if degraded > 0 {
				return fmt.Errorf("%d of %d chains are degraded", degraded, len(snapshots))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "bound on the whole check")
	return cmd
}

func printHealth(cmd *cobra.Command, snapshots []rpcpool.PoolHealthSnapshot) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tNAME\tACTIVE\tHEALTHY\tLATENCY\tENDPOINTS")
	for _, snap := range snapshots {
		active := snap.ActiveURL
		if snap.Degraded {
			active = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%dms\t%d/%d\n",
			snap.ChainID, snap.Name, active, snap.Healthy, snap.LatencyMs, snap.HealthyCount, snap.TotalEndpoints)
	}
	_ = w.Flush()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print chainconnd version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Name:    %s\n", "chainconnd")
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:  %s\n", Commit)
		},
	}
}
