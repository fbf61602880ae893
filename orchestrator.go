package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// OrchestratorOptions configures an Orchestrator. Catalog, Store, Loader,
// Endpoints and Logger are required; Resolver and Publisher are built with
// sensible defaults when omitted.
type OrchestratorOptions struct {
	Catalog   ModuleCatalog
	Store     InstallationStore
	Loader    *Loader
	Endpoints *EndpointManager
	Logger    Logger

	// Resolver overrides the default resolver built over Catalog and
	// Store.
	Resolver *Resolver

	// Subject receives lifecycle events. Nil disables event publishing.
	Subject Subject
}

// Orchestrator coordinates the resolver, loader, endpoint manager and
// event publisher to drive the installation state machine:
//
//	pending -> installed -> uninstalling -> uninstalled
//
// with error reachable from any state on failure. Within one operation,
// steps are strictly sequential; the only fire-and-forget step is the
// final lifecycle event publish. The at-most-one-active invariant for a
// (module, tenant) pair is enforced by the store's Create path; the
// orchestrator's own pre-check exists only to produce a readable
// validation error before any state is created.
type Orchestrator struct {
	catalog   ModuleCatalog
	store     InstallationStore
	resolver  *Resolver
	loader    *Loader
	endpoints *EndpointManager
	publisher *EventPublisher
	logger    Logger
}

// NewOrchestrator creates an installation orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver(opts.Catalog, opts.Store, opts.Logger)
	}
	return &Orchestrator{
		catalog:   opts.Catalog,
		store:     opts.Store,
		resolver:  resolver,
		loader:    opts.Loader,
		endpoints: opts.Endpoints,
		publisher: NewEventPublisher(opts.Subject, opts.Logger),
		logger:    opts.Logger,
	}
}

// Install provisions the module for the tenant. Validation failures are
// rejected before any state is created; resolution failures mark the new
// installation record as errored before any runtime resources are
// allocated; load and initialization failures trigger a best-effort
// rollback and mark the record as errored.
func (o *Orchestrator) Install(ctx context.Context, moduleID, tenantID string, config map[string]any, actor string) (*Installation, error) {
	if moduleID == "" {
		return nil, ErrModuleNameEmpty
	}
	if tenantID == "" {
		return nil, ErrTenantEmpty
	}

	// Step 1: validation, before any state mutation.
	def, err := o.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if !def.Installable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrModuleNotPublished, moduleID, def.Status)
	}
	if err := def.ConfigSchema.ValidateConfig(config); err != nil {
		return nil, err
	}
	active, err := o.store.List(ctx, InstallationFilter{
		TenantID: tenantID,
		ModuleID: moduleID,
		Statuses: []InstallationStatus{StatusPending, StatusInstalled, StatusUninstalling},
	})
	if err != nil {
		return nil, fmt.Errorf("checking existing installations: %w", err)
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("%w: module %s, tenant %s (installation %s is %s)",
			ErrInstallationExists, moduleID, tenantID, active[0].ID, active[0].Status)
	}

	// Step 2: create the durable record. The store re-checks the active
	// uniqueness under its own lock, which closes the race the pre-check
	// above cannot.
	inst := &Installation{
		ID:            NewInstallationID(),
		ModuleID:      moduleID,
		TenantID:      tenantID,
		ModuleVersion: def.Version,
		Status:        StatusPending,
		Health:        HealthUnknown,
		Config:        config,
		InstalledBy:   actor,
	}
	inst.RecordEvent(HistoryCreated, "installation requested by "+actor)
	if err := o.store.Create(ctx, inst); err != nil {
		return nil, err
	}

	o.logger.Info("Installing module", "module", moduleID, "tenant", tenantID, "installation", inst.ID, "version", def.Version)

	// Step 3: dependency resolution. No runtime resources exist yet, so a
	// failure only marks the record.
	plan, err := o.resolver.Analyze(ctx, moduleID, tenantID)
	if err != nil {
		o.failInstallation(ctx, inst, err.Error())
		return inst, fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	if !plan.Resolvable {
		summary := plan.ConflictSummary()
		o.failInstallation(ctx, inst, summary)
		return inst, fmt.Errorf("%w: %s", ErrDependencyUnresolvable, summary)
	}

	// Step 4: every required dependency must also be running in this
	// process, not merely recorded as installed.
	for _, depName := range def.Manifest.RequiredDependencies() {
		if !o.loader.IsModuleLoaded(depName, tenantID) {
			msg := fmt.Sprintf("required dependency %q is not loaded for tenant %q", depName, tenantID)
			o.failInstallation(ctx, inst, msg)
			return inst, fmt.Errorf("%w: %s", ErrDependencyNotInstalled, msg)
		}
	}

	// Step 5: load, register, initialize, in that order.
	loaded, err := o.bringUp(ctx, def, inst)
	if err != nil {
		o.failInstallation(ctx, inst, err.Error())
		o.publisher.PublishModuleLifecycleEvent(ctx, EventTypeModuleFailed, loaded, CorrelationID(inst.ID))
		return inst, fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	// Step 6: commit and notify.
	inst.Status = StatusInstalled
	inst.Health = HealthHealthy
	inst.RecordEvent(HistoryLoaded, "module loaded and initialized")
	if err := o.store.Update(ctx, inst); err != nil {
		o.rollback(ctx, moduleID, tenantID)
		o.failInstallation(ctx, inst, err.Error())
		return inst, fmt.Errorf("%w: persisting installed state: %v", ErrInstallFailed, err)
	}

	o.publisher.PublishModuleLifecycleEvent(ctx, EventTypeModuleLoaded, loaded, CorrelationID(inst.ID))
	o.logger.Info("Module installed", "module", moduleID, "tenant", tenantID, "installation", inst.ID)
	return inst, nil
}

// bringUp performs the resource-allocating install steps. On failure the
// partially acquired resources are rolled back in reverse order and the
// causing error is returned; the caller owns the record transition.
func (o *Orchestrator) bringUp(ctx context.Context, def *ModuleDefinition, inst *Installation) (*LoadedModule, error) {
	loaded, err := o.loader.Load(ctx, def, inst)
	if err != nil {
		return nil, err
	}

	if err := o.endpoints.OnModuleLoaded(loaded); err != nil {
		o.rollback(ctx, def.Name, inst.TenantID)
		return nil, err
	}

	if err := o.loader.Initialize(ctx, loaded); err != nil {
		o.rollback(ctx, def.Name, inst.TenantID)
		return nil, err
	}
	return loaded, nil
}

// rollback tears down whatever install acquired, in reverse order of
// acquisition. Both steps are best-effort and always terminate; their own
// failures are logged and ignored so the rollback can never leave the
// operation hanging.
func (o *Orchestrator) rollback(ctx context.Context, moduleID, tenantID string) {
	o.logCleanup(o.endpoints.OnModuleUnloaded(moduleID, tenantID), moduleID, tenantID)
	o.logCleanup(o.loader.Unload(ctx, moduleID, tenantID), moduleID, tenantID)
}

func (o *Orchestrator) logCleanup(outcome CleanupOutcome, moduleID, tenantID string) {
	if outcome.Attempted && !outcome.Succeeded {
		o.logger.Warn("Best-effort cleanup step failed",
			"step", outcome.Step, "module", moduleID, "tenant", tenantID, "error", outcome.Err)
	}
}

// failInstallation transitions the record to error with the given message.
// The transition itself is best-effort: if even the store write fails, the
// failure is logged and the in-memory record still reflects the error
// state for the caller.
func (o *Orchestrator) failInstallation(ctx context.Context, inst *Installation, message string) {
	inst.Status = StatusError
	inst.Health = HealthError
	inst.ErrorMessage = message
	inst.RecordEvent(HistoryError, message)
	if err := o.store.Update(ctx, inst); err != nil {
		o.logger.Error("Failed to persist errored installation",
			"installation", inst.ID, "module", inst.ModuleID, "error", err)
	}
}

// Uninstall removes the module installation. It is idempotent: an already
// uninstalled installation is a no-op success. Uninstall is blocked while
// other active installations declare a required dependency on the module.
// Teardown failures inside the best-effort boundary are logged and
// swallowed; an unexpected orchestration error marks the record as errored
// and is returned, since the module's resources may already be partially
// torn down and retrying uninstall is the recovery path.
func (o *Orchestrator) Uninstall(ctx context.Context, installationID string) error {
	inst, err := o.store.Get(ctx, installationID)
	if err != nil {
		return err
	}
	if inst.Status == StatusUninstalled {
		return nil
	}

	dependents, err := o.resolver.DependentModules(ctx, inst.ModuleID, inst.TenantID)
	if err != nil {
		return fmt.Errorf("%w: computing dependents: %v", ErrUninstallFailed, err)
	}
	if len(dependents) > 0 {
		return fmt.Errorf("%w: %s is required by %s", ErrHasDependents, inst.ModuleID, strings.Join(dependents, ", "))
	}

	// Persist the transition before teardown so a crash mid-uninstall is
	// observable.
	inst.Status = StatusUninstalling
	inst.RecordEvent(HistoryUninstalling, "")
	if err := o.store.Update(ctx, inst); err != nil {
		return fmt.Errorf("%w: persisting uninstalling state: %v", ErrUninstallFailed, err)
	}

	o.logCleanup(o.loader.Unload(ctx, inst.ModuleID, inst.TenantID), inst.ModuleID, inst.TenantID)
	o.logCleanup(o.endpoints.OnModuleUnloaded(inst.ModuleID, inst.TenantID), inst.ModuleID, inst.TenantID)

	inst.Status = StatusUninstalled
	inst.Health = HealthUnloaded
	inst.RecordEvent(HistoryUninstalled, "")
	if err := o.store.Update(ctx, inst); err != nil {
		o.failInstallation(ctx, inst, err.Error())
		return fmt.Errorf("%w: persisting uninstalled state: %v", ErrUninstallFailed, err)
	}

	o.publisher.PublishModuleLifecycleEvent(ctx, EventTypeModuleUnloaded, nil, CorrelationID(inst.ID))
	o.logger.Info("Module uninstalled", "module", inst.ModuleID, "tenant", inst.TenantID, "installation", inst.ID)
	return nil
}

// Reload restarts the module instance using the existing installation
// record: unload and deregister, then load, register and initialize again.
// Dependency resolution is intentionally not re-run; the installation was
// validated at install time, and a dependency uninstalled since then
// surfaces through HealthCheck rather than blocking the reload.
func (o *Orchestrator) Reload(ctx context.Context, installationID string) error {
	inst, err := o.store.Get(ctx, installationID)
	if err != nil {
		return err
	}
	if inst.Status != StatusInstalled {
		return fmt.Errorf("%w: installation %s is %s", ErrInstallationNotActive, inst.ID, inst.Status)
	}

	def, err := o.catalog.GetModule(ctx, inst.ModuleID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	o.logCleanup(o.loader.Unload(ctx, inst.ModuleID, inst.TenantID), inst.ModuleID, inst.TenantID)
	o.logCleanup(o.endpoints.OnModuleUnloaded(inst.ModuleID, inst.TenantID), inst.ModuleID, inst.TenantID)

	loaded, err := o.bringUp(ctx, def, inst)
	if err != nil {
		o.failInstallation(ctx, inst, err.Error())
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	inst.Health = HealthHealthy
	inst.ErrorMessage = ""
	inst.RecordEvent(HistoryReloaded, "")
	if err := o.store.Update(ctx, inst); err != nil {
		return fmt.Errorf("%w: persisting reloaded state: %v", ErrReloadFailed, err)
	}

	o.publisher.PublishModuleLifecycleEvent(ctx, EventTypeModuleStarted, loaded, CorrelationID(inst.ID))
	o.logger.Info("Module reloaded", "module", inst.ModuleID, "tenant", inst.TenantID, "installation", inst.ID)
	return nil
}

// UpdateConfiguration validates and persists a new configuration document
// for the installation. With hotReload, an in-place reconfiguration is
// attempted on the running instance; a hot-apply failure is recorded in
// history as a soft failure and does not revert the persisted
// configuration or fail the call. The configuration intent always wins; a
// manual Reload applies it when hot-apply could not.
func (o *Orchestrator) UpdateConfiguration(ctx context.Context, installationID string, newConfig map[string]any, hotReload bool) (*Installation, error) {
	inst, err := o.store.Get(ctx, installationID)
	if err != nil {
		return nil, err
	}

	def, err := o.catalog.GetModule(ctx, inst.ModuleID)
	if err != nil {
		return nil, err
	}
	if err := def.ConfigSchema.ValidateConfig(newConfig); err != nil {
		return nil, err
	}

	inst.Config = newConfig
	inst.RecordEvent(HistoryConfigured, "")
	if err := o.store.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("persisting configuration: %w", err)
	}

	if hotReload && inst.Status == StatusInstalled {
		if softErr := o.hotApply(ctx, inst, newConfig); softErr != nil {
			inst.RecordEvent(HistoryHotReloadFailed, softErr.Error())
			if err := o.store.Update(ctx, inst); err != nil {
				o.logger.Error("Failed to record hot reload failure", "installation", inst.ID, "error", err)
			}
			o.logger.Warn("Configuration hot reload deferred",
				"installation", inst.ID, "module", inst.ModuleID, "error", softErr)
		}
	}

	o.publisher.PublishModuleLifecycleEvent(ctx, EventTypeModuleConfigured, nil, CorrelationID(inst.ID))
	return inst, nil
}

// hotApply attempts an in-place reconfiguration of the running instance.
func (o *Orchestrator) hotApply(ctx context.Context, inst *Installation, config map[string]any) error {
	loaded, ok := o.loader.Loaded(inst.ModuleID, inst.TenantID)
	if !ok {
		return ErrModuleNotLoaded
	}
	reconf, ok := loaded.Runtime.(Reconfigurable)
	if !ok {
		return fmt.Errorf("module %s does not support hot reconfiguration", inst.ModuleID)
	}
	return reconf.ApplyConfig(ctx, config)
}

// HealthCheck runs the five independent checks against the installation
// and aggregates them: all checks passing is healthy, an active
// installation with a failing check is degraded, an inactive installation
// is unhealthy, and a check that cannot be evaluated yields error. The
// response time and the installation's health state and last-check
// timestamp are recorded regardless of outcome.
func (o *Orchestrator) HealthCheck(ctx context.Context, installationID string) (*HealthCheckResult, error) {
	start := time.Now()
	inst, err := o.store.Get(ctx, installationID)
	if err != nil {
		return nil, err
	}

	result := &HealthCheckResult{
		InstallationID: inst.ID,
		ModuleID:       inst.ModuleID,
		Checks:         make(map[string]bool, 5),
		CheckedAt:      start,
	}

	result.Checks[CheckInstallationActive] = inst.Status == StatusInstalled
	result.Checks[CheckModuleLoaded] = o.loader.IsModuleLoaded(inst.ModuleID, inst.TenantID)

	report := o.loader.HealthCheckModule(ctx, inst.ModuleID, inst.TenantID)
	result.Checks[CheckModuleHealth] = report.Status == HealthHealthy

	result.Checks[CheckEndpointsRegistered] = o.endpoints.IsRegistered(inst.ModuleID, inst.TenantID)

	depsReady, depErr := o.dependenciesReady(ctx, inst)
	if depErr != nil {
		result.Status = HealthError
		result.Message = depErr.Error()
	} else {
		result.Checks[CheckDependenciesReady] = depsReady
		result.Status = aggregateHealth(result.Checks)
		if result.Status != HealthHealthy {
			result.Message = report.Message
		}
	}
	result.ResponseTime = time.Since(start)

	inst.Health = result.Status
	inst.LastHealthCheck = start
	if err := o.store.Update(ctx, inst); err != nil {
		o.logger.Warn("Failed to persist health check outcome", "installation", inst.ID, "error", err)
	}
	return result, nil
}

// dependenciesReady reports whether every required dependency of the
// installation's module is both installed for the tenant and loaded in
// this process.
func (o *Orchestrator) dependenciesReady(ctx context.Context, inst *Installation) (bool, error) {
	def, err := o.catalog.GetModule(ctx, inst.ModuleID)
	if err != nil {
		return false, err
	}
	installed, err := o.resolver.installedModules(ctx, inst.TenantID)
	if err != nil {
		return false, err
	}
	for _, depName := range def.Manifest.RequiredDependencies() {
		if !installed[depName] || !o.loader.IsModuleLoaded(depName, inst.TenantID) {
			return false, nil
		}
	}
	return true, nil
}

// aggregateHealth maps check outcomes to an overall state. An inactive
// installation is unhealthy no matter what else passes; an active one with
// any failing check is degraded.
func aggregateHealth(checks map[string]bool) HealthState {
	if !checks[CheckInstallationActive] {
		return HealthUnhealthy
	}
	for _, ok := range checks {
		if !ok {
			return HealthDegraded
		}
	}
	return HealthHealthy
}

// AggregateHealth evaluates every installed module for the tenant (or all
// tenants when tenantID is empty) and returns a combined snapshot. A
// health-evaluated lifecycle event is published best-effort.
func (o *Orchestrator) AggregateHealth(ctx context.Context, tenantID string) (*AggregateSnapshot, error) {
	active, err := o.store.List(ctx, InstallationFilter{
		TenantID: tenantID,
		Statuses: []InstallationStatus{StatusInstalled},
	})
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}

	snapshot := &AggregateSnapshot{
		SnapshotID:  generateEventID(),
		TenantID:    tenantID,
		GeneratedAt: time.Now(),
	}
	for _, inst := range active {
		result, err := o.HealthCheck(ctx, inst.ID)
		if err != nil {
			o.logger.Warn("Health check failed during aggregation", "installation", inst.ID, "error", err)
			continue
		}
		snapshot.Results = append(snapshot.Results, result)
	}
	snapshot.Summary = summarize(snapshot.Results)

	o.publisher.PublishModuleLifecycleEvent(ctx, EventTypeHealthEvaluated, nil, snapshot.SnapshotID)
	return snapshot, nil
}

// Restore rebuilds the process-local loaded-module table from the durable
// installation records after a process restart. Every installation in
// installed status is loaded, registered and initialized again. An
// installation whose module cannot be brought back is marked unhealthy,
// not errored: the durable record remains authoritative and a later Reload
// can retry.
func (o *Orchestrator) Restore(ctx context.Context) error {
	installed, err := o.store.List(ctx, InstallationFilter{
		Statuses: []InstallationStatus{StatusInstalled},
	})
	if err != nil {
		return fmt.Errorf("listing installed modules: %w", err)
	}

	var errs []error
	for _, inst := range installed {
		if o.loader.IsModuleLoaded(inst.ModuleID, inst.TenantID) {
			continue
		}
		def, err := o.catalog.GetModule(ctx, inst.ModuleID)
		if err == nil {
			_, err = o.bringUp(ctx, def, inst)
		}
		if err != nil {
			o.logger.Warn("Failed to restore module after restart",
				"module", inst.ModuleID, "tenant", inst.TenantID, "installation", inst.ID, "error", err)
			inst.Health = HealthUnhealthy
			if updateErr := o.store.Update(ctx, inst); updateErr != nil {
				o.logger.Error("Failed to persist restore outcome", "installation", inst.ID, "error", updateErr)
			}
			errs = append(errs, fmt.Errorf("restoring %s for tenant %s: %w", inst.ModuleID, inst.TenantID, err))
			continue
		}

		inst.Health = HealthHealthy
		inst.RecordEvent(HistoryRestored, "")
		if err := o.store.Update(ctx, inst); err != nil {
			o.logger.Error("Failed to persist restore outcome", "installation", inst.ID, "error", err)
		}
		o.logger.Info("Module restored", "module", inst.ModuleID, "tenant", inst.TenantID)
	}
	return errors.Join(errs...)
}
