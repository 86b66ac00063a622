package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/config"
	routesystem "github.com/chirino/clinical-history/internal/plugin/route/system"
	"github.com/chirino/clinical-history/internal/plugin/store/cached"
	storemetrics "github.com/chirino/clinical-history/internal/plugin/store/metrics"
	registrycache "github.com/chirino/clinical-history/internal/registry/cache"
	registrymigrate "github.com/chirino/clinical-history/internal/registry/migrate"
	registryroute "github.com/chirino/clinical-history/internal/registry/route"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/security"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.HistoryStore
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts HTTP on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting clinical history service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.RequestIDMiddleware())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	resolver := security.NewTokenResolver(cfg)
	deps := registryroute.Deps{
		Store:  store,
		Config: cfg,
		Auth:   security.AuthMiddleware(resolver),
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router, deps); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter, deps); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router, deps); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		if closeManagement != nil {
			_ = closeManagement(context.Background())
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}

// buildStore opens the configured datastore and layers metrics and the
// history cache over it. A cache that fails to start is logged and skipped.
func buildStore(ctx context.Context, cfg *config.Config) (registrystore.HistoryStore, error) {
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	cacheLoader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
		return store, nil
	}
	historyCache, err := cacheLoader(ctx)
	if err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		return store, nil
	}
	return cached.Wrap(store, historyCache, cfg.HistoryCacheTTL), nil
}
