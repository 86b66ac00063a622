package route

import (
	"sort"
	"sync"

	"github.com/chirino/clinical-history/internal/config"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// Deps are the initialized subsystems route plugins mount against.
type Deps struct {
	Store  registrystore.HistoryStore
	Config *config.Config
	// Auth resolves the caller identity. Management routes do not use it.
	Auth gin.HandlerFunc
}

// RouterLoader mounts routes on the gin engine.
type RouterLoader func(r *gin.Engine, deps Deps) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// When no dedicated management port is configured, these are mounted on the main server.
	RouteTypeManagement
)

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Name   string
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu       sync.Mutex
	plugins  []Plugin
	isSorted bool
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
	isSorted = false
}

func byType(t RouteType) []RouterLoader {
	mu.Lock()
	defer mu.Unlock()
	if !isSorted {
		sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
		isSorted = true
	}
	var loaders []RouterLoader
	for _, p := range plugins {
		if p.Type == t {
			loaders = append(loaders, p.Loader)
		}
	}
	return loaders
}

// MainRouteLoaders returns loaders for RouteTypeMain plugins, sorted by order.
func MainRouteLoaders() []RouterLoader {
	return byType(RouteTypeMain)
}

// ManagementRouteLoaders returns loaders for RouteTypeManagement plugins, sorted by order.
func ManagementRouteLoaders() []RouterLoader {
	return byType(RouteTypeManagement)
}
