package installer

import (
	"errors"
)

// Orchestration errors
var (
	// Catalog and validation errors
	ErrModuleNotFound     = errors.New("module not found in catalog")
	ErrModuleNotPublished = errors.New("module is not in a publishable state")
	ErrModuleNameEmpty    = errors.New("module name cannot be empty")
	ErrTenantEmpty        = errors.New("tenant id cannot be empty")

	// Installation record errors
	ErrInstallationNotFound  = errors.New("installation not found")
	ErrInstallationExists    = errors.New("active installation already exists for module and tenant")
	ErrInstallationNotActive = errors.New("installation is not active")
	ErrInstallationNil       = errors.New("installation is nil")

	// Configuration errors
	ErrConfigRequiredFieldMissing = errors.New("required configuration field is missing")
	ErrConfigFieldInvalid         = errors.New("configuration field has invalid value")

	// Resolution errors
	ErrDependencyUnresolvable = errors.New("module dependencies cannot be resolved")
	ErrDependencyNotInstalled = errors.New("required dependency is not installed")
	ErrHasDependents          = errors.New("module has active dependents")

	// Loader errors
	ErrModuleLoad          = errors.New("module load failed")
	ErrModuleAlreadyLoaded = errors.New("module is already loaded")
	ErrModuleNotLoaded     = errors.New("module is not loaded")
	ErrRuntimeFactoryNil   = errors.New("runtime factory is nil")

	// Endpoint registration errors
	ErrEndpointRegistration = errors.New("endpoint registration failed")

	// Orchestrator errors
	ErrInstallFailed   = errors.New("module installation failed")
	ErrUninstallFailed = errors.New("module uninstall failed")
	ErrReloadFailed    = errors.New("module reload failed")

	// Catalog file errors
	ErrManifestInvalid = errors.New("module manifest is invalid")
)
