// Package store contains GORM-backed SQLite models used by chainconn.
//
// Database Structure (default file: chainconn.db):
//
//	chainconn.db
//	└── failover_events
package store

import (
	"time"

	"gorm.io/gorm"
)

// FailoverEvent records one change of a pool's bound endpoint.
// FromURL is empty when the pool leaves the degraded state, ToURL is empty
// when it enters it.
type FailoverEvent struct {
	gorm.Model
	ChainID    string    `gorm:"index:idx_chain_occurred;not null"` // CAIP-2 chain id
	FromURL    string    // Endpoint the pool was bound to
	ToURL      string    // Endpoint the pool is bound to now
	Trigger    string    `gorm:"index"`                             // "request", "health_check", "fail_back" or "degraded"
	Reason     string    `gorm:"type:text"`                         // Error that caused the change, if any
	OccurredAt time.Time `gorm:"index:idx_chain_occurred;not null"` // When the pool changed endpoint
}
