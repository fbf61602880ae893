package installer

import (
	"context"
	"fmt"
	"sort"
)

// ConflictSeverity classifies a resolution conflict.
type ConflictSeverity string

const (
	// SeverityCritical conflicts block installation.
	SeverityCritical ConflictSeverity = "critical"

	// SeverityWarning conflicts are reported but do not block.
	SeverityWarning ConflictSeverity = "warning"
)

// Conflict is a single problem found while resolving a module's
// dependencies for a tenant.
type Conflict struct {
	// Severity is critical or warning.
	Severity ConflictSeverity `json:"severity"`

	// Dependency is the name of the dependency the conflict concerns.
	Dependency string `json:"dependency,omitempty"`

	// Description is a human-readable explanation.
	Description string `json:"description"`
}

// ResolutionPlan is the transient result of analyzing whether a module's
// dependencies can be satisfied for a tenant. Plans are produced fresh on
// every install attempt and never persisted.
type ResolutionPlan struct {
	// ModuleID is the module the plan was produced for.
	ModuleID string `json:"moduleId"`

	// TenantID is the tenant the plan was produced for.
	TenantID string `json:"tenantId"`

	// Resolvable is true iff no critical conflicts exist.
	Resolvable bool `json:"resolvable"`

	// Conflicts lists everything that could affect resolution.
	Conflicts []Conflict `json:"conflicts,omitempty"`

	// Satisfied lists required dependencies already installed and active
	// for the tenant, in declaration order.
	Satisfied []string `json:"satisfied,omitempty"`
}

// CriticalConflicts returns only the critical conflicts in the plan.
func (p *ResolutionPlan) CriticalConflicts() []Conflict {
	var out []Conflict
	for _, c := range p.Conflicts {
		if c.Severity == SeverityCritical {
			out = append(out, c)
		}
	}
	return out
}

// ConflictSummary joins the critical conflict descriptions into a single
// message suitable for an installation's error field.
func (p *ResolutionPlan) ConflictSummary() string {
	summary := ""
	for _, c := range p.CriticalConflicts() {
		if summary != "" {
			summary += "; "
		}
		summary += c.Description
	}
	return summary
}

// Resolver analyzes module dependencies against a tenant's installed set.
// It reads the module catalog and the installation store and never mutates
// either; a resolution failure is reported in the plan, not returned as an
// error, so the caller decides whether to abort.
type Resolver struct {
	catalog ModuleCatalog
	store   InstallationStore
	logger  Logger
}

// NewResolver creates a dependency resolver over the given catalog and
// installation store.
func NewResolver(catalog ModuleCatalog, store InstallationStore, logger Logger) *Resolver {
	return &Resolver{catalog: catalog, store: store, logger: logger}
}

// Analyze builds a resolution plan for installing the module for the
// tenant. Each required dependency that is not installed and active is a
// critical conflict; optional or non-module dependencies that are absent
// are warnings. A returned error indicates a catalog or store failure, not
// a resolution failure.
func (r *Resolver) Analyze(ctx context.Context, moduleID, tenantID string) (*ResolutionPlan, error) {
	def, err := r.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	installed, err := r.installedModules(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	plan := &ResolutionPlan{ModuleID: moduleID, TenantID: tenantID}
	for _, dep := range def.Manifest.Dependencies {
		if dep.Type != "" && dep.Type != DependencyTypeModule {
			if !installed[dep.Name] {
				plan.Conflicts = append(plan.Conflicts, Conflict{
					Severity:    SeverityWarning,
					Dependency:  dep.Name,
					Description: fmt.Sprintf("dependency %q of type %q is outside module resolution", dep.Name, dep.Type),
				})
			}
			continue
		}
		if installed[dep.Name] {
			if !dep.Optional {
				plan.Satisfied = append(plan.Satisfied, dep.Name)
			}
			continue
		}
		if dep.Optional {
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Severity:    SeverityWarning,
				Dependency:  dep.Name,
				Description: fmt.Sprintf("optional dependency %q is not installed", dep.Name),
			})
			continue
		}
		plan.Conflicts = append(plan.Conflicts, Conflict{
			Severity:    SeverityCritical,
			Dependency:  dep.Name,
			Description: fmt.Sprintf("required dependency %q is not installed for tenant %q", dep.Name, tenantID),
		})
	}

	plan.Resolvable = len(plan.CriticalConflicts()) == 0
	r.logger.Debug("Resolution plan computed",
		"module", moduleID, "tenant", tenantID,
		"resolvable", plan.Resolvable, "conflicts", len(plan.Conflicts))
	return plan, nil
}

// DependentModules returns the module names of active installations for
// the tenant that declare a required dependency on the given module. The
// orchestrator uses this to block uninstall while dependents exist.
func (r *Resolver) DependentModules(ctx context.Context, moduleID, tenantID string) ([]string, error) {
	active, err := r.store.List(ctx, InstallationFilter{
		TenantID: tenantID,
		Statuses: []InstallationStatus{StatusInstalled},
	})
	if err != nil {
		return nil, fmt.Errorf("listing installations for tenant %s: %w", tenantID, err)
	}

	var dependents []string
	for _, inst := range active {
		if inst.ModuleID == moduleID {
			continue
		}
		def, err := r.catalog.GetModule(ctx, inst.ModuleID)
		if err != nil {
			// A module that vanished from the catalog cannot be consulted;
			// treat it as non-dependent but leave a trace.
			r.logger.Warn("Installed module missing from catalog during dependent lookup",
				"module", inst.ModuleID, "tenant", tenantID, "error", err)
			continue
		}
		if DeclaresRequiredDependency(def.Manifest.Dependencies, moduleID) {
			dependents = append(dependents, inst.ModuleID)
		}
	}
	sort.Strings(dependents)
	return dependents, nil
}

// installedModules returns the set of module names with an installed
// status for the tenant.
func (r *Resolver) installedModules(ctx context.Context, tenantID string) (map[string]bool, error) {
	active, err := r.store.List(ctx, InstallationFilter{
		TenantID: tenantID,
		Statuses: []InstallationStatus{StatusInstalled},
	})
	if err != nil {
		return nil, fmt.Errorf("listing installations for tenant %s: %w", tenantID, err)
	}
	installed := make(map[string]bool, len(active))
	for _, inst := range active {
		installed[inst.ModuleID] = true
	}
	return installed, nil
}
