package installer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// LoadedModule is the in-memory, process-local handle for a module's
// running instance. It is created by Loader.Load, destroyed by
// Loader.Unload and never persisted: after a process restart the loader's
// table is empty and must be reconstructed from installation records (see
// Orchestrator.Restore).
type LoadedModule struct {
	// ModuleID is the catalog name of the module.
	ModuleID string

	// InstallationID links the handle to its durable installation record.
	InstallationID string

	// TenantID is the tenant the instance runs for.
	TenantID string

	// Version is the module version that was loaded.
	Version string

	// Runtime is the module's running instance.
	Runtime ModuleRuntime

	// LoadedAt is when the handle was created.
	LoadedAt time.Time
}

// CleanupOutcome captures the result of a best-effort cleanup step
// (unload, endpoint deregistration). Cleanup never propagates errors; the
// outcome keeps diagnostics structured instead of relying on
// catch-and-log at every call site.
type CleanupOutcome struct {
	// Step names the cleanup step, e.g. "unload" or "unregister".
	Step string

	// Attempted is false when there was nothing to clean up.
	Attempted bool

	// Succeeded is true when the step completed without error.
	Succeeded bool

	// Err is the swallowed error, if any.
	Err error
}

// Loader owns the process-local table of loaded module instances, keyed by
// module id per tenant. It is the only genuinely mutable process-wide
// state in this package and is safe for concurrent use.
//
// The loader is an injectable instance: construct one per process and pass
// it to the Orchestrator rather than sharing a package-level singleton.
type Loader struct {
	mu      sync.RWMutex
	loaded  map[string]*LoadedModule
	factory RuntimeFactory
	logger  Logger
}

// NewLoader creates a loader that acquires module runtimes from the given
// factory.
func NewLoader(factory RuntimeFactory, logger Logger) *Loader {
	return &Loader{
		loaded:  make(map[string]*LoadedModule),
		factory: factory,
		logger:  logger,
	}
}

// loadKey scopes the loaded table per tenant so the same module can run
// for multiple tenants in one process.
func loadKey(moduleID, tenantID string) string {
	return tenantID + "/" + moduleID
}

// Load allocates a runtime handle for the module. It fails with
// ErrModuleAlreadyLoaded when a handle already exists for the module and
// tenant, and wraps factory failures in ErrModuleLoad. The returned handle
// has not been started; call Initialize after endpoint registration.
func (l *Loader) Load(ctx context.Context, module *ModuleDefinition, inst *Installation) (*LoadedModule, error) {
	if l.factory == nil {
		return nil, ErrRuntimeFactoryNil
	}

	key := loadKey(module.Name, inst.TenantID)
	l.mu.Lock()
	if _, exists := l.loaded[key]; exists {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s for tenant %s", ErrModuleAlreadyLoaded, module.Name, inst.TenantID)
	}
	l.mu.Unlock()

	runtime, err := l.factory.NewRuntime(ctx, module, inst)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleLoad, module.Name, err)
	}

	loaded := &LoadedModule{
		ModuleID:       module.Name,
		InstallationID: inst.ID,
		TenantID:       inst.TenantID,
		Version:        module.Version,
		Runtime:        runtime,
		LoadedAt:       time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.loaded[key]; exists {
		// Lost a race with a concurrent load; release the runtime we built.
		go func() {
			if stopErr := runtime.Stop(context.Background()); stopErr != nil {
				l.logger.Warn("Failed to stop runtime after losing load race", "module", module.Name, "error", stopErr)
			}
		}()
		return nil, fmt.Errorf("%w: %s for tenant %s", ErrModuleAlreadyLoaded, module.Name, inst.TenantID)
	}
	l.loaded[key] = loaded

	l.logger.Debug("Module loaded", "module", module.Name, "tenant", inst.TenantID, "installation", inst.ID)
	return loaded, nil
}

// Initialize runs the module's own startup hook. A non-nil error is a
// graceful initialization failure: the caller is expected to roll the
// installation back, not crash. This is distinct from a load failure,
// which means the module's resources could not be acquired at all.
func (l *Loader) Initialize(ctx context.Context, loaded *LoadedModule) error {
	if loaded == nil || loaded.Runtime == nil {
		return ErrModuleNotLoaded
	}
	if err := loaded.Runtime.Start(ctx); err != nil {
		return fmt.Errorf("module %s initialization failed: %w", loaded.ModuleID, err)
	}
	l.logger.Debug("Module initialized", "module", loaded.ModuleID, "tenant", loaded.TenantID)
	return nil
}

// Unload removes the module's handle and stops its runtime. It is
// best-effort: a stop failure is logged and reported in the outcome, but
// the table entry is removed regardless, since keeping state for a
// half-torn-down instance is worse than losing the handle.
func (l *Loader) Unload(ctx context.Context, moduleID, tenantID string) CleanupOutcome {
	key := loadKey(moduleID, tenantID)

	l.mu.Lock()
	loaded, exists := l.loaded[key]
	delete(l.loaded, key)
	l.mu.Unlock()

	outcome := CleanupOutcome{Step: "unload", Attempted: exists, Succeeded: true}
	if !exists {
		return outcome
	}

	if err := loaded.Runtime.Stop(ctx); err != nil {
		outcome.Succeeded = false
		outcome.Err = err
		l.logger.Warn("Module runtime stop failed during unload",
			"module", moduleID, "tenant", tenantID, "error", err)
	} else {
		l.logger.Debug("Module unloaded", "module", moduleID, "tenant", tenantID)
	}
	return outcome
}

// IsModuleLoaded reports whether a handle exists for the module and
// tenant.
func (l *Loader) IsModuleLoaded(moduleID, tenantID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.loaded[loadKey(moduleID, tenantID)]
	return ok
}

// Loaded returns the handle for the module and tenant, if present.
func (l *Loader) Loaded(moduleID, tenantID string) (*LoadedModule, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	loaded, ok := l.loaded[loadKey(moduleID, tenantID)]
	return loaded, ok
}

// HealthCheckModule runs the module's self-reported health check. An
// unloaded module reports HealthUnloaded.
func (l *Loader) HealthCheckModule(ctx context.Context, moduleID, tenantID string) HealthReport {
	loaded, ok := l.Loaded(moduleID, tenantID)
	if !ok {
		return HealthReport{
			Module:    moduleID,
			Status:    HealthUnloaded,
			Message:   "module is not loaded",
			CheckedAt: time.Now(),
		}
	}
	report := loaded.Runtime.HealthCheck(ctx)
	if report.Module == "" {
		report.Module = moduleID
	}
	if report.CheckedAt.IsZero() {
		report.CheckedAt = time.Now()
	}
	return report
}

// LoadedModules returns the keys of all loaded handles, sorted, for
// debugging and aggregate health reporting.
func (l *Loader) LoadedModules() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.loaded))
	for key := range l.loaded {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
