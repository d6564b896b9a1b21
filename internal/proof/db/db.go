// Package db implements the durable keyed store on top of gorm, backed by
// PostgreSQL in production and SQLite for local runs and tests.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/proofly/internal/proof/db/models"
	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Repository is a store.Store persisted in a single kv_entries table.
type Repository struct {
	db         *gorm.DB
	txOptions  *sql.TxOptions
	maxRetries uint64
}

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite database file, ":memory:" for a private in-memory DB.
	Path string
}

func NewRepository(cfg *Config) (*Repository, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// Serializable isolation turns concurrent read-modify-write of the
		// same key, including keys that do not exist yet, into a retryable
		// serialization failure.
		return newRepository(db, &sql.TxOptions{Isolation: sql.LevelSerializable})
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// One connection: SQLite transactions then run strictly one at a
		// time, and ":memory:" stays a single database.
		sqlDB.SetMaxOpenConns(1)
		return newRepository(db, nil)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", e.ErrInvalidInput, cfg.Driver)
	}
}

func newRepository(db *gorm.DB, txOptions *sql.TxOptions) (*Repository, error) {
	if err := db.AutoMigrate(&models.Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Repository{db: db, txOptions: txOptions, maxRetries: 5}, nil
}

// Txn runs fn inside a database transaction, retrying serialization
// failures.
func (r *Repository) Txn(ctx context.Context, fn func(tx store.Tx) error) error {
	var fnErr error
	op := func() error {
		fnErr = nil
		opts := []*sql.TxOptions{}
		if r.txOptions != nil {
			opts = append(opts, r.txOptions)
		}
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := fn(&gormTx{db: tx}); err != nil {
				fnErr = err
				return err
			}
			return nil
		}, opts...)
		switch {
		case err == nil:
			return nil
		case isSerializationFailure(err):
			return err
		case fnErr != nil:
			return backoff.Permanent(fnErr)
		default:
			return backoff.Permanent(unavailable(err))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	err := backoff.Retry(op, policy)
	if err != nil && isSerializationFailure(err) {
		return unavailable(err)
	}
	return err
}

// View runs fn with plain reads outside of a transaction.
func (r *Repository) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return fn(&gormTx{db: r.db.WithContext(ctx), readOnly: true})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

type gormTx struct {
	db       *gorm.DB
	readOnly bool
}

func (t *gormTx) Get(p store.Partition, key string) ([]byte, bool, error) {
	var entry models.Entry
	result := t.db.Where("partition_name = ? AND entry_key = ?", string(p), key).Take(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, unavailable(result.Error)
	}
	return entry.Value, true, nil
}

func (t *gormTx) Put(p store.Partition, key string, value []byte) error {
	if t.readOnly {
		return fmt.Errorf("write in read-only view: %w", e.ErrInvalidInput)
	}
	if value == nil {
		value = []byte{}
	}
	entry := &models.Entry{Partition: string(p), Key: key, Value: value}
	result := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "partition_name"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry)
	if result.Error != nil {
		return unavailable(result.Error)
	}
	return nil
}

func (t *gormTx) Delete(p store.Partition, key string) error {
	if t.readOnly {
		return fmt.Errorf("write in read-only view: %w", e.ErrInvalidInput)
	}
	result := t.db.Where("partition_name = ? AND entry_key = ?", string(p), key).Delete(&models.Entry{})
	if result.Error != nil {
		return unavailable(result.Error)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, e.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", e.ErrStoreUnavailable, err)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}
