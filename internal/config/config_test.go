package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidate_RequiresDBURL(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorContains(t, cfg.Validate(), "db-url")

	cfg.DBURL = "postgres://localhost/history"
	require.NoError(t, cfg.Validate())
}

func TestValidate_RedisCacheNeedsURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBURL = "history.db"
	cfg.CacheType = "redis"
	require.ErrorContains(t, cfg.Validate(), "redis")

	cfg.RedisURL = "redis://localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsNegativeTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBURL = "history.db"
	cfg.HistoryCacheTTL = -time.Second
	require.Error(t, cfg.Validate())
}

func TestContextRoundTrip(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))

	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Equal(t, "default", FromContext(ctx).DefaultTenantID)
}
