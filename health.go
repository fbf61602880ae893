package installer

import (
	"time"
)

// HealthReport is a module's self-reported health, produced by the module
// runtime's HealthCheck hook or synthesized by the loader for unloaded
// modules.
type HealthReport struct {
	// Module is the module this report is for.
	Module string `json:"module"`

	// Status is the reported health state.
	Status HealthState `json:"status"`

	// Message provides human-readable details about the status.
	Message string `json:"message,omitempty"`

	// CheckedAt indicates when the check was performed.
	CheckedAt time.Time `json:"checkedAt"`

	// Details contains additional structured diagnostic information.
	Details map[string]any `json:"details,omitempty"`
}

// Health check names used in HealthCheckResult.Checks.
const (
	CheckInstallationActive  = "installation_active"
	CheckModuleLoaded        = "module_loaded"
	CheckModuleHealth        = "module_health"
	CheckEndpointsRegistered = "endpoints_registered"
	CheckDependenciesReady   = "dependencies_ready"
)

// HealthCheckResult aggregates the independent checks run against one
// installation. Every evaluation, success or failure, records a response
// time and updates the installation's health state and last-check
// timestamp.
type HealthCheckResult struct {
	// InstallationID is the evaluated installation.
	InstallationID string `json:"installationId"`

	// ModuleID is the installed module.
	ModuleID string `json:"moduleId"`

	// Status is the aggregated health state.
	Status HealthState `json:"status"`

	// Checks maps each check name to its pass/fail outcome.
	Checks map[string]bool `json:"checks"`

	// Message explains a non-healthy status.
	Message string `json:"message,omitempty"`

	// CheckedAt is when the evaluation started.
	CheckedAt time.Time `json:"checkedAt"`

	// ResponseTime is how long the evaluation took.
	ResponseTime time.Duration `json:"responseTime"`
}

// Healthy reports whether the aggregated status is healthy.
func (r *HealthCheckResult) Healthy() bool {
	return r.Status == HealthHealthy
}

// FailedChecks returns the names of checks that did not pass. Map
// iteration order applies; callers needing determinism should sort the
// result.
func (r *HealthCheckResult) FailedChecks() []string {
	var failed []string
	for name, ok := range r.Checks {
		if !ok {
			failed = append(failed, name)
		}
	}
	return failed
}

// HealthSummary counts installations by aggregated health state.
type HealthSummary struct {
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
	Errored   int `json:"errored"`
	Total     int `json:"total"`
}

// AggregateSnapshot is the combined health of a tenant's installed
// modules at a point in time.
type AggregateSnapshot struct {
	// SnapshotID uniquely identifies this snapshot for correlation.
	SnapshotID string `json:"snapshotId"`

	// TenantID is the tenant the snapshot covers; empty means all tenants.
	TenantID string `json:"tenantId,omitempty"`

	// Results holds the per-installation evaluations.
	Results []*HealthCheckResult `json:"results"`

	// Summary counts results by state.
	Summary HealthSummary `json:"summary"`

	// GeneratedAt is when the snapshot was collected.
	GeneratedAt time.Time `json:"generatedAt"`
}

// Healthy reports whether every evaluated installation is healthy.
func (s *AggregateSnapshot) Healthy() bool {
	return s.Summary.Total == s.Summary.Healthy
}

func summarize(results []*HealthCheckResult) HealthSummary {
	summary := HealthSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case HealthHealthy:
			summary.Healthy++
		case HealthDegraded:
			summary.Degraded++
		case HealthError:
			summary.Errored++
		default:
			summary.Unhealthy++
		}
	}
	return summary
}
