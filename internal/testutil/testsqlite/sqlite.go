package testsqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chirino/clinical-history/internal/config"
	"github.com/chirino/clinical-history/internal/plugin/store/gormstore"
	"github.com/chirino/clinical-history/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/clinical-history/internal/registry/migrate"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
)

// Config returns a config pointing at a fresh sqlite file under tb.TempDir().
func Config(tb testing.TB) config.Config {
	tb.Helper()
	_ = sqlite.ForceImport

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(tb.TempDir(), "history.db")
	return cfg
}

// NewStore migrates a fresh sqlite database and returns a store over it,
// with a context carrying the config.
func NewStore(tb testing.TB) (registrystore.HistoryStore, context.Context) {
	tb.Helper()

	cfg := Config(tb)
	ctx := config.WithContext(context.Background(), &cfg)
	if err := registrymigrate.RunAll(ctx); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	loader, err := registrystore.Select("sqlite")
	if err != nil {
		tb.Fatalf("select sqlite store: %v", err)
	}
	store, err := loader(ctx)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}
	if gs, ok := store.(*gormstore.Store); ok {
		tb.Cleanup(func() {
			if sqlDB, err := gs.DB().DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	}
	return store, ctx
}
