package installer

import (
	"fmt"
	"reflect"

	"github.com/golobby/cast"
)

// ModuleStatus represents the catalog publishing state of a module.
// Publishing is owned by an external workflow; this subsystem only checks
// that a module is installable.
type ModuleStatus string

const (
	// ModuleStatusPublished indicates the module may be installed.
	ModuleStatusPublished ModuleStatus = "published"

	// ModuleStatusDraft indicates the module is not yet installable.
	ModuleStatusDraft ModuleStatus = "draft"

	// ModuleStatusDeprecated indicates the module should no longer be
	// installed. Existing installations keep running.
	ModuleStatusDeprecated ModuleStatus = "deprecated"
)

// DependencyType classifies a manifest dependency entry.
type DependencyType string

const (
	// DependencyTypeModule is a dependency on another catalog module.
	DependencyTypeModule DependencyType = "module"

	// DependencyTypeService is a dependency on an externally provided
	// service. Service dependencies are outside this subsystem's
	// resolution scope and only surface as warnings.
	DependencyTypeService DependencyType = "service"
)

// ModuleDependency is a single entry in a module's declared dependency
// list.
type ModuleDependency struct {
	// Name is the catalog name of the target module.
	Name string `json:"name" yaml:"name" toml:"name"`

	// Type classifies the dependency. Empty defaults to module.
	Type DependencyType `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`

	// Optional marks a dependency whose absence does not block install.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty" toml:"optional,omitempty"`
}

// ModuleManifest declares what a module needs from its environment.
type ModuleManifest struct {
	Dependencies []ModuleDependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
}

// ConfigSchema describes the configuration a module accepts. Required
// lists field names that must be present at install/reconfigure time;
// Fields optionally maps field names to a scalar kind ("string", "int",
// "float", "bool") that supplied values must coerce to.
type ConfigSchema struct {
	Required []string          `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Fields   map[string]string `json:"fields,omitempty" yaml:"fields,omitempty" toml:"fields,omitempty"`
}

// ModuleDefinition is a module catalog entry: identity, declared version,
// dependency manifest and configuration schema.
type ModuleDefinition struct {
	Name         string         `json:"name" yaml:"name" toml:"name"`
	Version      string         `json:"version" yaml:"version" toml:"version"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Status       ModuleStatus   `json:"status,omitempty" yaml:"status,omitempty" toml:"status,omitempty"`
	Manifest     ModuleManifest `json:"manifest,omitempty" yaml:"manifest,omitempty" toml:"manifest,omitempty"`
	ConfigSchema ConfigSchema   `json:"configSchema,omitempty" yaml:"configSchema,omitempty" toml:"configSchema,omitempty"`
}

// Installable reports whether the module is in a publishable state.
func (d *ModuleDefinition) Installable() bool {
	return d.Status == ModuleStatusPublished || d.Status == ""
}

// RequiredDependencies returns the names of the module dependencies that
// must be satisfied for the module to install.
func (m ModuleManifest) RequiredDependencies() []string {
	return requiredNames(m.Dependencies)
}

// configKinds maps schema kind names to reflection types for value
// coercion.
var configKinds = map[string]reflect.Type{
	"string": reflect.TypeOf(""),
	"int":    reflect.TypeOf(int(0)),
	"float":  reflect.TypeOf(float64(0)),
	"bool":   reflect.TypeOf(false),
}

// ValidateConfig checks a configuration document against the schema.
// Every required field must be present, and typed fields must coerce to
// their declared kind. Validation never mutates the supplied document.
func (s ConfigSchema) ValidateConfig(config map[string]any) error {
	for _, field := range s.Required {
		if _, ok := config[field]; !ok {
			return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, field)
		}
	}
	for field, kind := range s.Fields {
		value, ok := config[field]
		if !ok {
			continue
		}
		target, known := configKinds[kind]
		if !known {
			return fmt.Errorf("%w: field %q declares unknown kind %q", ErrManifestInvalid, field, kind)
		}
		if reflect.TypeOf(value) == target {
			continue
		}
		if _, err := cast.FromType(fmt.Sprint(value), target); err != nil {
			return fmt.Errorf("%w: field %q is not a valid %s: %v", ErrConfigFieldInvalid, field, kind, err)
		}
	}
	return nil
}

// Validate checks the structural validity of a module definition loaded
// from a catalog file.
func (d *ModuleDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrManifestInvalid)
	}
	if d.Version == "" {
		return fmt.Errorf("%w: module %q has no version", ErrManifestInvalid, d.Name)
	}
	for _, dep := range d.Manifest.Dependencies {
		if dep.Name == "" {
			return fmt.Errorf("%w: module %q declares a dependency with no name", ErrManifestInvalid, d.Name)
		}
		if dep.Name == d.Name {
			return fmt.Errorf("%w: module %q depends on itself", ErrManifestInvalid, d.Name)
		}
	}
	return nil
}
