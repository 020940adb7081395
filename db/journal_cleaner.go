package db

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/chainconn/config"
)

// JournalCleaner periodically prunes failover events past their retention
type JournalCleaner struct {
	journal         *FailoverJournal
	logger          zerolog.Logger
	stopCh          chan struct{}
	stopOnce        sync.Once
	cleanupInterval time.Duration
	retentionPeriod time.Duration
}

// NewJournalCleaner creates a cleaner using the journal settings from cfg
func NewJournalCleaner(journal *FailoverJournal, cfg *config.Config, logger zerolog.Logger) *JournalCleaner {
	return &JournalCleaner{
		journal:         journal,
		cleanupInterval: time.Duration(cfg.JournalCleanupIntervalSeconds) * time.Second,
		retentionPeriod: time.Duration(cfg.JournalRetentionSeconds) * time.Second,
		logger:          logger.With().Str("component", "journal_cleaner").Logger(),
		stopCh:          make(chan struct{}),
	}
}

// Start runs one cleanup immediately and then one per interval until ctx
// is cancelled or Stop is called
func (jc *JournalCleaner) Start(ctx context.Context) error {
	jc.logger.Info().
		Dur("cleanup_interval", jc.cleanupInterval).
		Dur("retention_period", jc.retentionPeriod).
		Msg("starting journal cleaner")

	if err := jc.performCleanup(); err != nil {
		// Don't fail startup on cleanup error, just log it
		jc.logger.Error().Err(err).Msg("failed to perform initial cleanup")
	}

	ticker := time.NewTicker(jc.cleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				jc.logger.Info().Msg("context cancelled, stopping journal cleaner")
				return
			case <-jc.stopCh:
				jc.logger.Info().Msg("stop signal received, stopping journal cleaner")
				return
			case <-ticker.C:
				if err := jc.performCleanup(); err != nil {
					jc.logger.Error().Err(err).Msg("failed to perform scheduled cleanup")
				}
			}
		}
	}()

	return nil
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (jc *JournalCleaner) Stop() {
	jc.stopOnce.Do(func() {
		jc.logger.Info().Msg("stopping journal cleaner")
		close(jc.stopCh)
	})
}

func (jc *JournalCleaner) performCleanup() error {
	start := time.Now()

	deleted, err := jc.journal.DeleteOlderThan(jc.retentionPeriod)
	if err != nil {
		return err
	}

	if deleted > 0 {
		jc.logger.Info().
			Int64("deleted_count", deleted).
			Dur("duration", time.Since(start)).
			Msg("journal cleanup completed")
		jc.checkpointWAL()
	} else {
		jc.logger.Debug().
			Dur("duration", time.Since(start)).
			Msg("journal cleanup completed - no events to delete")
	}
	return nil
}

// checkpointWAL truncates the WAL file after deletions. In-memory databases
// have no WAL and the pragma is a no-op there.
func (jc *JournalCleaner) checkpointWAL() {
	if err := jc.journal.db.Client().Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		jc.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}
}
