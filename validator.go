package installer

// Dependency validation is a pure function library: no state, no I/O.
// The resolver and orchestrator build their decisions on top of it.

// MissingRequired returns the names of required module dependencies that
// are not in the satisfied set, in declaration order. Optional and
// non-module dependencies are ignored.
func MissingRequired(deps []ModuleDependency, satisfied map[string]bool) []string {
	var missing []string
	for _, name := range requiredNames(deps) {
		if !satisfied[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// DependenciesSatisfied reports whether every required module dependency
// is in the satisfied set and, when not, the name of the first missing
// dependency.
func DependenciesSatisfied(deps []ModuleDependency, satisfied map[string]bool) (bool, string) {
	missing := MissingRequired(deps, satisfied)
	if len(missing) == 0 {
		return true, ""
	}
	return false, missing[0]
}

// DeclaresRequiredDependency reports whether the dependency list contains
// a required module dependency on the named module.
func DeclaresRequiredDependency(deps []ModuleDependency, moduleID string) bool {
	for _, name := range requiredNames(deps) {
		if name == moduleID {
			return true
		}
	}
	return false
}

func requiredNames(deps []ModuleDependency) []string {
	var names []string
	for _, dep := range deps {
		if dep.Optional {
			continue
		}
		if dep.Type != "" && dep.Type != DependencyTypeModule {
			continue
		}
		names = append(names, dep.Name)
	}
	return names
}
