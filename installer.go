// Package installer provides a multi-tenant module installation lifecycle
// manager. It orchestrates the install, uninstall, reload, reconfigure and
// health-check operations for pluggable modules, keeping a durable
// Installation record per (module, tenant) pair and a process-local table of
// running module instances.
//
// The package is a library-level orchestration layer: it owns no wire
// protocol or CLI of its own. The embedding service supplies the module
// catalog, the installation store, the module runtime factory and the
// request-routing layer, and drives the Orchestrator.
//
// Basic usage:
//
//	loader := installer.NewLoader(factory, logger)
//	endpoints := installer.NewEndpointManager(logger)
//	orch := installer.NewOrchestrator(installer.OrchestratorOptions{
//		Catalog:   catalog,
//		Store:     installer.NewMemoryStore(),
//		Loader:    loader,
//		Endpoints: endpoints,
//		Logger:    logger,
//	})
//	inst, err := orch.Install(ctx, "billing", "tenant-1", config, "admin")
package installer

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// ModuleRuntime represents a module's running instance as seen by the
// Loader. The actual module-specific code behind this interface is opaque
// to the orchestration layer.
//
// A runtime is created by a RuntimeFactory during load, started during
// initialization and stopped during unload. Implementations may optionally
// implement RouteProvider to expose HTTP operations and Reconfigurable to
// accept hot configuration changes.
type ModuleRuntime interface {
	// Start runs the module's own startup hook. It is called once, after
	// the module's endpoints have been registered. A non-nil error is a
	// graceful initialization failure: the caller rolls the installation
	// back rather than crashing.
	Start(ctx context.Context) error

	// Stop releases the module's runtime resources. It is called during
	// unload and is best-effort; errors are logged by the Loader and never
	// propagated.
	Stop(ctx context.Context) error

	// HealthCheck reports the module's self-assessed health.
	HealthCheck(ctx context.Context) HealthReport
}

// RouteProvider is an optional interface for module runtimes that expose
// HTTP operations. The EndpointManager mounts the returned router under
// the module's path prefix when the module is loaded and removes it when
// the module is unloaded.
type RouteProvider interface {
	Routes() chi.Router
}

// Reconfigurable is an optional interface for module runtimes that can
// apply a configuration change in place, without a full unload/reload
// cycle. A non-nil error defers the change to the next reload; the
// persisted configuration is not reverted.
type Reconfigurable interface {
	ApplyConfig(ctx context.Context, config map[string]any) error
}

// RuntimeFactory creates module runtime instances. The factory is the
// boundary to the module-specific code: acquiring the module's code or
// resources happens here, and a failure is reported by the Loader as a
// load error (distinct from a Start failure).
type RuntimeFactory interface {
	// NewRuntime allocates a runtime for the given module and installation.
	// The returned runtime has not been started yet.
	NewRuntime(ctx context.Context, module *ModuleDefinition, installation *Installation) (ModuleRuntime, error)
}

// RuntimeFactoryFunc adapts a function to the RuntimeFactory interface.
type RuntimeFactoryFunc func(ctx context.Context, module *ModuleDefinition, installation *Installation) (ModuleRuntime, error)

// NewRuntime implements RuntimeFactory by calling the function.
func (f RuntimeFactoryFunc) NewRuntime(ctx context.Context, module *ModuleDefinition, installation *Installation) (ModuleRuntime, error) {
	return f(ctx, module, installation)
}
