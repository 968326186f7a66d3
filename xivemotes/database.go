package xivemotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var (
	sqliteExecPragma = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// Store wraps a GORM connection with the bot's persistence operations:
// identity mapping (ResolveUser, ResolveGuild), settings resolution
// (EffectiveSettings and the preference mutators), the emote catalog
// (RegisterEmote), and the usage ledger (RecordInvocation, UsageCount).
//
// All coordination comes from the database's constraint and transaction
// guarantees rather than in-process locks: first-sight identity races
// are settled by the unique index on the external ID, and each
// invocation is written in a single transaction. The one exception is
// SQLite, where writes are serialized behind a mutex since the driver
// only supports a single writer.
type Store struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool
}

// NewStore initializes a Store around the given GORM connection.
// enableConcurrentWrites should be true for postgres and false for
// sqlite.
func NewStore(
	db *gorm.DB,
	log *slog.Logger,
	enableConcurrentWrites bool,
) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:                     db,
		logger:                 log.With(loggerNameKey, "store"),
		enableConcurrentWrites: enableConcurrentWrites,
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) lock() {
	if s.enableConcurrentWrites {
		return
	}
	s.mu.Lock()
}

func (s *Store) unlock() {
	if s.enableConcurrentWrites {
		return
	}
	s.mu.Unlock()
}

// withDeadline applies the default operation timeout when the caller
// hasn't set one of their own.
func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbOperationTimeout)
}

// CreateDB initializes and returns a GORM database connection based on
// the specified database type, and migrates the bot's models.
//
// Parameters:
//   - ctx: The context for the database operations.
//   - databaseType: The type of the database, must be 'sqlite' or 'postgres'.
//   - database: The database connection string, or SQLite file path.
func CreateDB(ctx context.Context, databaseType string, database string) (*gorm.DB, error) {
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     slog.LevelWarn,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, 500*time.Millisecond)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	if databaseType == dbTypeSQLite {
		for _, pragma := range sqliteExecPragma {
			if err = db.Exec(pragma).Error; err != nil {
				return db, fmt.Errorf("error setting pragma %q: %w", pragma, err)
			}
		}
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&User{},
		&Guild{},
		&Emote{},
		&EmoteLog{},
		&EmoteLogTag{},
	)
	if err != nil {
		return db, err
	}

	commitErr := txn.Commit().Error
	if commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

// getDB initializes and returns a GORM database connection based on the
// specified database type. TranslateError is enabled so that unique
// constraint violations surface as gorm.ErrDuplicatedKey regardless of
// driver.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(sqlite.Open(database), cfg)
	case dbTypePostgres:
		return gorm.Open(postgres.Open(database), cfg)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
