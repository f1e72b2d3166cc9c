// Package store is the content store (spec §4.2): a transactional,
// schema-versioned home for Folders, Files, Segments, Shares,
// AccessGrants and Users, reachable with the serializable per-folder
// semantics and transient-contention retries the spec requires.
//
// Grounded on marmos91-dittofs's pkg/controlplane/store (GORMStore
// wrapping *gorm.DB, New() running migrations before handing back a
// store) and pkg/store/metadata/postgres (golang-migrate + pgx stdlib
// driver, invoked from store.New rather than left to gorm.AutoMigrate).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rorocorp/uns/internal/uerr"
)

// Config is the subset of the application configuration store.Open needs.
type Config struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

func (c Config) dsn() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// Store is the content store. One Store owns one database; it is safe
// for concurrent use by many goroutines.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects, runs migrations, and returns a ready Store.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	dsn := cfg.dsn()

	if err := runMigrations(dsn, log); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)

	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the underlying *gorm.DB for callers that need to build
// their own queries without re-deriving the connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// withFolderLock runs fn inside a serializable transaction holding a
// Postgres transaction-scoped advisory lock keyed on folderUniqueID, so
// concurrent callers mutating the same folder's Files/Segments/state
// serialize instead of racing (spec §4.2 "Serializable updates per
// folder"). On serialization failure or transient contention it retries
// with exponential backoff, capped at 3 attempts per spec §4.2.
func (s *Store) withFolderLock(ctx context.Context, folderUniqueID string, fn func(tx *gorm.DB) error) error {
	txOpts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	attempt := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", folderUniqueID).Error; err != nil {
				return fmt.Errorf("store: acquire folder lock: %w", err)
			}
			return fn(tx)
		}, txOpts)
	}

	err := retry.Do(
		func() error { return attempt() },
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransientDBError),
		retry.LastErrorOnly(true),
	)
	return classifyStoreError(err)
}

func isTransientDBError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return true
		}
	}
	return false
}

// classifyStoreError maps low-level driver/gorm errors onto the spec §7
// taxonomy so callers never see a raw *pgconn.PgError.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var ue *uerr.Error
	if errors.As(err, &ue) {
		return ue // already classified, e.g. TransitionFolder's ValidationError
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uerr.Wrap(uerr.KindValidation, "store", "record not found", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return uerr.Wrap(uerr.KindConflict, "store", pgErr.ConstraintName, err)
		case "53100", "53200", "53300": // disk full, out of memory, too many connections
			return uerr.Wrap(uerr.KindStorageFull, "store", pgErr.Message, err)
		case "40001", "40P01", "55P03":
			return uerr.Wrap(uerr.KindTransient, "store", "transient contention", err)
		}
	}
	return uerr.Wrap(uerr.KindTransient, "store", "unclassified store error", err)
}
