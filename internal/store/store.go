// Package store persists DiscoveryJob, Device, and CredentialProfile rows
// via GORM over a pure-Go sqlite dialect (github.com/glebarez/sqlite),
// the same pairing used by sun977-NeoScan/neoMaster's model layer.
// Operations that take an owner id are gated on it: profiles by owner_id,
// jobs by created_by, devices by joining through their credential
// profile's owner.
package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store bundles the three repositories behind one *gorm.DB connection
// pool. Per spec §5/§9, the request domain and the discovery domain must
// each own an independent pool — callers construct two Stores, never share
// one *gorm.DB between them.
type Store struct {
	db          *gorm.DB
	Profiles    *ProfileStore
	Jobs        *JobStore
	Devices     *DeviceStore
}

// Open creates a new independent connection pool against the sqlite file
// at path, and wires up the three repositories over it.
func Open(path string, maxConns int) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}

	return &Store{
		db:       db,
		Profiles: &ProfileStore{db: db},
		Jobs:     &JobStore{db: db},
		Devices:  &DeviceStore{db: db},
	}, nil
}

// AutoMigrate creates/updates the three tables. Exposed so the `migrate`
// CLI subcommand (SPEC_FULL.md §9) can run it independently of `serve`.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&CredentialProfile{}, &DiscoveryJob{}, &Device{})
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
