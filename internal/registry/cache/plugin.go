package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/clinical-history/internal/model"
)

// HistoryCache holds aggregated conversation histories keyed by tenant and
// conversation. Entries are derived data; the datastore stays authoritative.
type HistoryCache interface {
	Available() bool
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, tenantID string, conversationID int64) (*model.History, error)
	Set(ctx context.Context, tenantID string, conversationID int64, history model.History, ttl time.Duration) error
	Remove(ctx context.Context, tenantID string, conversationID int64) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (HistoryCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
