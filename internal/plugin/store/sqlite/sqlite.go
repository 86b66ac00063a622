// Package sqlite registers a file-backed sqlite datastore. It serves single
// node deployments and the fast test suites; DBURL is a file path or a
// "file:" DSN (in-memory databases are not shared with the migrator).
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/config"
	"github.com/chirino/clinical-history/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/clinical-history/internal/registry/migrate"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.HistoryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := Open(cfg.DBURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			// sqlite allows one writer; a single connection avoids SQLITE_BUSY
			// between pooled connections.
			sqlDB.SetMaxOpenConns(1)
			return gormstore.New(db, Dialect{}), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

// Open connects GORM to a sqlite database with the store's UTC clock.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(withPragmas(dsn)), &gorm.Config{NowFunc: gormstore.NowUTC})
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("migration: failed to open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Sqlite schema migration complete")
	return nil
}

// Dialect is the sqlite flavour of gormstore.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) TagsOverlap(column string) string {
	return "EXISTS (SELECT 1 FROM json_each(" + column + ") WHERE json_each.value IN ?)"
}

func (Dialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
