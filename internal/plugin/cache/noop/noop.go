package noop

import (
	"context"
	"time"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.HistoryCache, error) {
			return &noopHistoryCache{}, nil
		},
	})
}

type noopHistoryCache struct{}

func (n *noopHistoryCache) Available() bool { return false }
func (n *noopHistoryCache) Get(_ context.Context, _ string, _ int64) (*model.History, error) {
	return nil, nil
}
func (n *noopHistoryCache) Set(_ context.Context, _ string, _ int64, _ model.History, _ time.Duration) error {
	return nil
}
func (n *noopHistoryCache) Remove(_ context.Context, _ string, _ int64) error { return nil }

var _ cache.HistoryCache = (*noopHistoryCache)(nil)
