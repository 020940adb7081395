package db

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pushchain/chainconn/rpcpool"
	"github.com/pushchain/chainconn/store"
)

const (
	// DefaultListLimit caps ListFailovers when no limit is given
	DefaultListLimit = 100

	// QueueSize is how many failovers may wait for the writer before new
	// ones are dropped
	QueueSize = 256
)

// FailoverJournal persists pool failover events. It is an rpcpool.Observer
// that only reacts to failovers. Events are handed to a single writer
// goroutine so pools never wait on the database.
type FailoverJournal struct {
	rpcpool.NopObserver

	db     *DB
	logger zerolog.Logger

	queue     chan rpcpool.FailoverEvent
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

var _ rpcpool.Observer = (*FailoverJournal)(nil)

// NewFailoverJournal creates a journal backed by database. Events queue up
// until Start runs the writer.
func NewFailoverJournal(database *DB, logger zerolog.Logger) *FailoverJournal {
	return &FailoverJournal{
		db:     database,
		logger: logger.With().Str("component", "failover_journal").Logger(),
		queue:  make(chan rpcpool.FailoverEvent, QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the writer. It runs until ctx is cancelled or Stop is
// called; either way the queue is flushed before it exits.
func (j *FailoverJournal) Start(ctx context.Context) {
	j.startOnce.Do(func() {
		j.wg.Add(1)
		go j.writeLoop(ctx)
	})
}

// Stop ends the writer and waits for queued events to be written. Call it
// before closing the database.
func (j *FailoverJournal) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *FailoverJournal) writeLoop(ctx context.Context) {
	defer j.wg.Done()
	for {
		select {
		case event := <-j.queue:
			j.persist(event)
		case <-ctx.Done():
			j.flush()
			return
		case <-j.stopCh:
			j.flush()
			return
		}
	}
}

func (j *FailoverJournal) flush() {
	for {
		select {
		case event := <-j.queue:
			j.persist(event)
		default:
			return
		}
	}
}

func (j *FailoverJournal) persist(event rpcpool.FailoverEvent) {
	if err := j.RecordFailover(event); err != nil {
		j.logger.Error().
			Err(err).
			Str("chain_id", event.ChainID).
			Str("trigger", string(event.Trigger)).
			Msg("failed to persist failover event")
	}
}

// RecordFailover stores one event
func (j *FailoverJournal) RecordFailover(event rpcpool.FailoverEvent) error {
	occurredAt := event.At
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	row := &store.FailoverEvent{
		ChainID:    event.ChainID,
		FromURL:    event.FromURL,
		ToURL:      event.ToURL,
		Trigger:    string(event.Trigger),
		Reason:     event.Reason,
		OccurredAt: occurredAt.UTC(),
	}
	if err := j.db.Client().Create(row).Error; err != nil {
		return errors.Wrapf(err, "failed to record failover for chain %s", event.ChainID)
	}
	return nil
}

// OnFailover queues the event for the writer and returns at once. When the
// queue is full the event is logged and dropped.
func (j *FailoverJournal) OnFailover(event rpcpool.FailoverEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case j.queue <- event:
	default:
		j.logger.Warn().
			Str("chain_id", event.ChainID).
			Str("from_url", event.FromURL).
			Str("to_url", event.ToURL).
			Str("trigger", string(event.Trigger)).
			Msg("failover journal queue full, dropping event")
	}
}

// ListFailovers returns the newest events for chainID, newest first.
// An empty chainID lists every chain.
func (j *FailoverJournal) ListFailovers(chainID string, limit int) ([]rpcpool.FailoverEvent, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := j.db.Client().Order("occurred_at DESC").Order("id DESC").Limit(limit)
	if chainID != "" {
		query = query.Where("chain_id = ?", chainID)
	}

	var rows []store.FailoverEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list failover events")
	}

	events := make([]rpcpool.FailoverEvent, len(rows))
	for i, row := range rows {
		events[i] = rpcpool.FailoverEvent{
			ChainID: row.ChainID,
			FromURL: row.FromURL,
			ToURL:   row.ToURL,
			Trigger: rpcpool.Trigger(row.Trigger),
			Reason:  row.Reason,
			At:      row.OccurredAt,
		}
	}
	return events, nil
}

// DeleteOlderThan hard-deletes events that occurred before now-retention
func (j *FailoverJournal) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()
	result := j.db.Client().Unscoped().Where("occurred_at < ?", cutoff).Delete(&store.FailoverEvent{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old failover events")
	}
	return result.RowsAffected, nil
}
