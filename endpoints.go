package installer

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// EndpointManager registers and unregisters loaded modules' externally
// exposed operations with the request-routing layer.
//
// Module routes are served under /modules/{tenant}/{module}/ on the
// manager's router. The route table is swapped atomically: no endpoint is
// visible before OnModuleLoaded succeeds, and none remains visible after
// OnModuleUnloaded, regardless of intermediate failures.
type EndpointManager struct {
	mu         sync.RWMutex
	registered map[string]http.Handler
	router     chi.Router
	logger     Logger
}

// NewEndpointManager creates an endpoint manager with its own chi router.
func NewEndpointManager(logger Logger) *EndpointManager {
	m := &EndpointManager{
		registered: make(map[string]http.Handler),
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Handle("/modules/{tenant}/{module}/*", http.HandlerFunc(m.dispatch))
	r.Handle("/modules/{tenant}/{module}", http.HandlerFunc(m.dispatch))
	m.router = r
	return m
}

// Router returns the router serving all registered module endpoints. The
// embedding service mounts it wherever its routing layer wants module
// operations exposed.
func (m *EndpointManager) Router() chi.Router {
	return m.router
}

// dispatch routes a request to the handler registered for the addressed
// module, if any.
func (m *EndpointManager) dispatch(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	module := chi.URLParam(r, "module")

	m.mu.RLock()
	handler, ok := m.registered[loadKey(module, tenant)]
	m.mu.RUnlock()

	if !ok || handler == nil {
		http.NotFound(w, r)
		return
	}

	prefix := fmt.Sprintf("/modules/%s/%s", tenant, module)
	http.StripPrefix(prefix, handler).ServeHTTP(w, r)
}

// OnModuleLoaded registers the loaded module's exposed operations. Modules
// whose runtime does not implement RouteProvider register an empty route
// set; the registration still counts for health reporting. The module's
// endpoints become visible only when this method returns nil.
func (m *EndpointManager) OnModuleLoaded(loaded *LoadedModule) error {
	if loaded == nil {
		return fmt.Errorf("%w: loaded module is nil", ErrEndpointRegistration)
	}

	var handler http.Handler
	if provider, ok := loaded.Runtime.(RouteProvider); ok {
		routes := provider.Routes()
		if routes == nil {
			return fmt.Errorf("%w: module %s returned a nil router", ErrEndpointRegistration, loaded.ModuleID)
		}
		handler = routes
	}

	key := loadKey(loaded.ModuleID, loaded.TenantID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registered[key]; exists {
		return fmt.Errorf("%w: module %s already registered for tenant %s", ErrEndpointRegistration, loaded.ModuleID, loaded.TenantID)
	}
	m.registered[key] = handler

	m.logger.Debug("Module endpoints registered", "module", loaded.ModuleID, "tenant", loaded.TenantID)
	return nil
}

// OnModuleUnloaded removes the module's endpoints. It is best-effort and
// idempotent: the entry is always removed and the outcome reports whether
// anything was registered.
func (m *EndpointManager) OnModuleUnloaded(moduleID, tenantID string) CleanupOutcome {
	key := loadKey(moduleID, tenantID)

	m.mu.Lock()
	_, existed := m.registered[key]
	delete(m.registered, key)
	m.mu.Unlock()

	if existed {
		m.logger.Debug("Module endpoints unregistered", "module", moduleID, "tenant", tenantID)
	}
	return CleanupOutcome{Step: "unregister", Attempted: existed, Succeeded: true}
}

// IsRegistered reports whether the module has registered endpoints for the
// tenant.
func (m *EndpointManager) IsRegistered(moduleID, tenantID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.registered[loadKey(moduleID, tenantID)]
	return ok
}
