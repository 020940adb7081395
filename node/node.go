// Package node assembles a runnable chainconn daemon from configuration:
// the connection manager, the failover journal, Prometheus metrics and the
// HTTP query server.
package node

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pushchain/chainconn/api"
	"github.com/pushchain/chainconn/chains"
	"github.com/pushchain/chainconn/config"
	"github.com/pushchain/chainconn/core"
	"github.com/pushchain/chainconn/db"
	"github.com/pushchain/chainconn/metrics"
	"github.com/pushchain/chainconn/rpcpool"
)

const shutdownTimeout = 5 * time.Second

// Node owns every long-running component of the daemon
type Node struct {
	cfg       config.Config
	log       zerolog.Logger
	manager   *core.ConnectionManager
	database  *db.DB
	journal   *db.FailoverJournal
	cleaner   *db.JournalCleaner
	collector *metrics.Collector
	server    *api.Server
}

// ManagerOptions maps the rpc_pool settings onto manager options
func ManagerOptions(cfg config.RPCPoolConfig) core.Options {
	return core.Options{
		HealthCheckInterval: cfg.HealthCheckInterval(),
		HealthCheckTimeout:  cfg.HealthCheckTimeout(),
		RequestTimeout:      cfg.RequestTimeout(),
		MaxFailures:         cfg.UnhealthyThreshold,
	}
}

// OpenDatabase opens the journal database at path, or an in-memory one
// when path is empty
func OpenDatabase(path string) (*db.DB, error) {
	return db.Open(path)
}

// New wires a node from cfg. Nothing runs until Run is called.
func New(cfg config.Config, log zerolog.Logger, registry *chains.ChainRegistry) (*Node, error) {
	poolConfigs, err := registry.BuildPoolConfigs(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve chain configs")
	}

	database, err := OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open failover journal")
	}

	n := &Node{
		cfg:      cfg,
		log:      log.With().Str("component", "node").Logger(),
		database: database,
		journal:  db.NewFailoverJournal(database, log),
	}
	n.cleaner = db.NewJournalCleaner(n.journal, &cfg, log)

	observers := []rpcpool.Observer{n.journal}
	serverOpts := []api.Option{api.WithFailoverSource(n.journal)}
	if cfg.MetricsEnabled {
		n.collector = metrics.NewCollector()
		observers = append(observers, n.collector)
		serverOpts = append(serverOpts, api.WithMetricsHandler(n.collector.Handler()))
	}

	n.manager, err = core.NewConnectionManager(poolConfigs, ManagerOptions(cfg.RPCPool), log, observers...)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	n.server = api.NewServer(log, cfg.QueryServerPort, n.manager, serverOpts...)

	return n, nil
}

// Manager returns the node's connection manager
func (n *Node) Manager() *core.ConnectionManager {
	return n.manager
}

// Journal returns the node's failover journal
func (n *Node) Journal() *db.FailoverJournal {
	return n.journal
}

// Server returns the node's query server
func (n *Node) Server() *api.Server {
	return n.server
}

// Run starts every component, blocks until ctx is cancelled and then
// shuts them down in reverse order.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info().
		Int("chains", len(n.manager.Chains())).
		Int("query_server_port", n.cfg.QueryServerPort).
		Bool("metrics", n.collector != nil).
		Msg("starting chainconn node")

	// the writer must run before startup failovers are reported
	n.journal.Start(ctx)

	if err := n.manager.Start(ctx); err != nil {
		n.journal.Stop()
		_ = n.database.Close()
		return errors.Wrap(err, "failed to start connection manager")
	}
	if n.collector != nil {
		for _, snap := range n.manager.HealthAll() {
			n.collector.ObserveSnapshot(snap)
		}
	}

	if err := n.cleaner.Start(ctx); err != nil {
		_ = n.shutdown()
		return errors.Wrap(err, "failed to start journal cleaner")
	}

	if err := n.server.Start(); err != nil {
		_ = n.shutdown()
		return errors.Wrap(err, "failed to start query server")
	}

	n.log.Info().Str("query_server", n.server.Addr()).Msg("initialization complete, serving")
	<-ctx.Done()

	n.log.Info().Msg("shutting down chainconn node")
	return n.shutdown()
}

func (n *Node) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.server.Stop(shutdownCtx); err != nil {
		n.log.Warn().Err(err).Msg("query server did not shut down cleanly")
	}

	n.cleaner.Stop()
	n.manager.Stop()
	n.journal.Stop()
	return n.database.Close()
}
