package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/config"
	"github.com/chirino/clinical-history/internal/model"
	registrycache "github.com/chirino/clinical-history/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL = time.Minute
	keyPrefix  = "clinical-history:history"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.HistoryCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CLINICAL_HISTORY_REDIS_HOSTS is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL, cfg.HistoryCacheTTL)
}

// LoadFromURL creates a HistoryCache from a redis:// URL. A non-positive ttl
// falls back to one minute.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.HistoryCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptions(ctx, opts, ttl)
}

// LoadFromOptions creates a HistoryCache from go-redis Options.
func LoadFromOptions(ctx context.Context, opts *goredis.Options, ttl time.Duration) (registrycache.HistoryCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	log.Info("Redis history cache enabled", "addr", opts.Addr, "ttl", ttl)
	return &redisHistoryCache{client: client, ttl: ttl}, nil
}

type redisHistoryCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func historyKey(tenantID string, conversationID int64) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, tenantID, conversationID)
}

func (c *redisHistoryCache) Available() bool {
	return true
}

func (c *redisHistoryCache) Get(ctx context.Context, tenantID string, conversationID int64) (*model.History, error) {
	data, err := c.client.Get(ctx, historyKey(tenantID, conversationID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cached model.History
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (c *redisHistoryCache) Set(ctx context.Context, tenantID string, conversationID int64, history model.History, ttl time.Duration) error {
	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, historyKey(tenantID, conversationID), data, ttl).Err()
}

func (c *redisHistoryCache) Remove(ctx context.Context, tenantID string, conversationID int64) error {
	return c.client.Del(ctx, historyKey(tenantID, conversationID)).Err()
}

var _ registrycache.HistoryCache = (*redisHistoryCache)(nil)
