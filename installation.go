package installer

import (
	"time"
)

// InstallationStatus represents the durable lifecycle state of an
// installation. Transitions are driven exclusively by the Orchestrator:
//
//	pending -> installed -> uninstalling -> uninstalled
//
// with error reachable from any state, and a new install permitted once the
// prior installation is uninstalled or errored.
type InstallationStatus string

const (
	// StatusPending indicates the installation record exists but the module
	// has not finished loading yet.
	StatusPending InstallationStatus = "pending"

	// StatusInstalled indicates the module is provisioned and running.
	StatusInstalled InstallationStatus = "installed"

	// StatusUninstalling indicates an uninstall is in progress. The status
	// is persisted before teardown begins so a crash mid-uninstall is
	// observable.
	StatusUninstalling InstallationStatus = "uninstalling"

	// StatusUninstalled indicates the module was removed for the tenant.
	// The record is retained; uninstall is a status transition, never a
	// row deletion.
	StatusUninstalled InstallationStatus = "uninstalled"

	// StatusError indicates the last lifecycle operation failed. The
	// ErrorMessage field carries the cause.
	StatusError InstallationStatus = "error"
)

// Active reports whether the status counts against the at-most-one-active
// invariant for a (module, tenant) pair.
func (s InstallationStatus) Active() bool {
	return s == StatusPending || s == StatusInstalled || s == StatusUninstalling
}

// HealthState represents the informational health of an installation,
// independent of its lifecycle status.
type HealthState string

const (
	// HealthUnknown indicates health has not been evaluated yet.
	HealthUnknown HealthState = "unknown"

	// HealthHealthy indicates all critical health checks pass.
	HealthHealthy HealthState = "healthy"

	// HealthDegraded indicates the installation is active but some
	// non-critical check is failing.
	HealthDegraded HealthState = "degraded"

	// HealthUnhealthy indicates the installation is not active.
	HealthUnhealthy HealthState = "unhealthy"

	// HealthUnloaded indicates the module has been unloaded.
	HealthUnloaded HealthState = "unloaded"

	// HealthError indicates the last health evaluation itself failed.
	HealthError HealthState = "error"
)

// History milestone names recorded on Installation records.
const (
	HistoryCreated         = "created"
	HistoryLoaded          = "loaded"
	HistoryUninstalling    = "uninstalling"
	HistoryUninstalled     = "uninstalled"
	HistoryReloaded        = "reloaded"
	HistoryConfigured      = "configured"
	HistoryRestored        = "restored"
	HistoryError           = "error"
	HistoryHotReloadFailed = "config_hot_reload_failed"
)

// HistoryEntry is a single timestamped lifecycle milestone in an
// installation's append-only history log.
type HistoryEntry struct {
	Event     string    `json:"event" yaml:"event"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Installation is the durable record of a module being provisioned for a
// tenant, independent of whether the module is currently running. One
// record exists per (module, tenant) provisioning attempt; at most one may
// be active at a time.
type Installation struct {
	// ID is the opaque, stable identifier of this installation.
	ID string `json:"id" yaml:"id"`

	// ModuleID is the catalog name of the installed module.
	ModuleID string `json:"moduleId" yaml:"moduleId"`

	// TenantID identifies the tenant the module is provisioned for.
	TenantID string `json:"tenantId" yaml:"tenantId"`

	// ModuleVersion records the module version active at install time.
	ModuleVersion string `json:"moduleVersion" yaml:"moduleVersion"`

	// Status is the durable lifecycle state.
	Status InstallationStatus `json:"status" yaml:"status"`

	// Health is the informational health state, updated by health checks
	// and lifecycle transitions. It does not gate lifecycle operations.
	Health HealthState `json:"health" yaml:"health"`

	// Config is the arbitrary key-value configuration supplied at install
	// time and mutable thereafter via UpdateConfiguration.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// History is the append-only ordered log of lifecycle milestones.
	History []HistoryEntry `json:"history,omitempty" yaml:"history,omitempty"`

	// ErrorMessage carries the cause of the last failure, if any.
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`

	// InstalledBy records the actor that requested the installation.
	InstalledBy string `json:"installedBy,omitempty" yaml:"installedBy,omitempty"`

	// LastHealthCheck is when health was last evaluated, regardless of the
	// evaluation's outcome.
	LastHealthCheck time.Time `json:"lastHealthCheck,omitempty" yaml:"lastHealthCheck,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// RecordEvent appends a timestamped milestone to the installation history.
func (i *Installation) RecordEvent(event, detail string) {
	i.History = append(i.History, HistoryEntry{
		Event:     event,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// Clone returns a deep copy of the installation. Stores hand out clones so
// callers cannot mutate persisted state without going through Update.
func (i *Installation) Clone() *Installation {
	if i == nil {
		return nil
	}
	out := *i
	if i.Config != nil {
		out.Config = make(map[string]any, len(i.Config))
		for k, v := range i.Config {
			out.Config[k] = v
		}
	}
	if i.History != nil {
		out.History = make([]HistoryEntry, len(i.History))
		copy(out.History, i.History)
	}
	return &out
}
