// Package db stores failover events in SQLite through GORM and prunes them
// once they age past the configured retention.
package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pushchain/chainconn/store"
)

const (
	memoryDSN = ":memory:"

	// fileParams applies to on-disk journals only
	fileParams = "?_journal_mode=WAL&_busy_timeout=5000&mode=rwc"

	dirPerm = 0o750
)

// DB is an open journal database with its schema in place
type DB struct {
	gorm *gorm.DB
}

// Open opens the journal at path, creating the file and its parent
// directories as needed. An empty path opens a private in-memory database
// that disappears on Close.
func Open(path string) (*DB, error) {
	dsn := memoryDSN
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return nil, errors.Wrapf(err, "failed to create journal directory for %s", path)
		}
		dsn = path + fileParams
	}

	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// A single connection serializes writers and keeps :memory: one database.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := client.AutoMigrate(&store.FailoverEvent{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to migrate journal schema")
	}

	return &DB{gorm: client}, nil
}

// Client exposes the GORM handle
func (d *DB) Client() *gorm.DB {
	return d.gorm
}

// Close releases the connection. Closing twice is harmless.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close journal database")
}
