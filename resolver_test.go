package installer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolverFixture(t *testing.T) (*Resolver, *MemoryCatalog, *MemoryStore) {
	t.Helper()
	catalog := NewMemoryCatalog()
	store := NewMemoryStore()
	return NewResolver(catalog, store, testLogger{}), catalog, store
}

func addCatalogModule(t *testing.T, catalog *MemoryCatalog, name string, deps ...ModuleDependency) {
	t.Helper()
	require.NoError(t, catalog.AddModule(&ModuleDefinition{
		Name:     name,
		Version:  "1.0.0",
		Status:   ModuleStatusPublished,
		Manifest: ModuleManifest{Dependencies: deps},
	}))
}

func installRow(t *testing.T, store *MemoryStore, module, tenant string) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), newInstallation(module, tenant, StatusInstalled)))
}

func TestAnalyzeNoDependencies(t *testing.T) {
	resolver, catalog, _ := resolverFixture(t)
	addCatalogModule(t, catalog, "billing")

	plan, err := resolver.Analyze(context.Background(), "billing", "tenant-1")
	require.NoError(t, err)
	assert.True(t, plan.Resolvable)
	assert.Empty(t, plan.Conflicts)
}

func TestAnalyzeMissingRequiredDependencyIsCritical(t *testing.T) {
	resolver, catalog, _ := resolverFixture(t)
	addCatalogModule(t, catalog, "orders", ModuleDependency{Name: "partners"})

	plan, err := resolver.Analyze(context.Background(), "orders", "tenant-1")
	require.NoError(t, err)
	assert.False(t, plan.Resolvable)

	critical := plan.CriticalConflicts()
	require.Len(t, critical, 1)
	assert.Equal(t, "partners", critical[0].Dependency)
	assert.Contains(t, plan.ConflictSummary(), "partners")
}

func TestAnalyzeSatisfiedDependency(t *testing.T) {
	resolver, catalog, store := resolverFixture(t)
	addCatalogModule(t, catalog, "orders", ModuleDependency{Name: "partners"})
	installRow(t, store, "partners", "tenant-1")

	plan, err := resolver.Analyze(context.Background(), "orders", "tenant-1")
	require.NoError(t, err)
	assert.True(t, plan.Resolvable)
	assert.Equal(t, []string{"partners"}, plan.Satisfied)
}

func TestAnalyzeDependencySatisfiedOnlyForSameTenant(t *testing.T) {
	resolver, catalog, store := resolverFixture(t)
	addCatalogModule(t, catalog, "orders", ModuleDependency{Name: "partners"})
	installRow(t, store, "partners", "tenant-2")

	plan, err := resolver.Analyze(context.Background(), "orders", "tenant-1")
	require.NoError(t, err)
	assert.False(t, plan.Resolvable, "another tenant's installation must not satisfy the dependency")
}

func TestAnalyzeOptionalMissingIsWarning(t *testing.T) {
	resolver, catalog, _ := resolverFixture(t)
	addCatalogModule(t, catalog, "orders",
		ModuleDependency{Name: "analytics", Optional: true},
		ModuleDependency{Name: "smtp", Type: DependencyTypeService},
	)

	plan, err := resolver.Analyze(context.Background(), "orders", "tenant-1")
	require.NoError(t, err)
	assert.True(t, plan.Resolvable)
	require.Len(t, plan.Conflicts, 2)
	for _, c := range plan.Conflicts {
		assert.Equal(t, SeverityWarning, c.Severity)
	}
}

func TestAnalyzeUnknownModule(t *testing.T) {
	resolver, _, _ := resolverFixture(t)

	_, err := resolver.Analyze(context.Background(), "ghost", "tenant-1")
	require.ErrorIs(t, err, ErrModuleNotFound)
}

func TestDependentModules(t *testing.T) {
	resolver, catalog, store := resolverFixture(t)
	addCatalogModule(t, catalog, "partners")
	addCatalogModule(t, catalog, "orders", ModuleDependency{Name: "partners"})
	addCatalogModule(t, catalog, "quotes", ModuleDependency{Name: "partners"})
	addCatalogModule(t, catalog, "reporting", ModuleDependency{Name: "partners", Optional: true})

	installRow(t, store, "partners", "tenant-1")
	installRow(t, store, "orders", "tenant-1")
	installRow(t, store, "quotes", "tenant-1")
	installRow(t, store, "reporting", "tenant-1")
	installRow(t, store, "orders", "tenant-2")

	dependents, err := resolver.DependentModules(context.Background(), "partners", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "quotes"}, dependents,
		"optional dependents and other tenants must not block")
}

func TestDependentModulesNoneActive(t *testing.T) {
	resolver, catalog, store := resolverFixture(t)
	addCatalogModule(t, catalog, "partners")
	addCatalogModule(t, catalog, "orders", ModuleDependency{Name: "partners"})
	installRow(t, store, "partners", "tenant-1")
	require.NoError(t, store.Create(context.Background(), newInstallation("orders", "tenant-1", StatusUninstalled)))

	dependents, err := resolver.DependentModules(context.Background(), "partners", "tenant-1")
	require.NoError(t, err)
	assert.Empty(t, dependents, "uninstalled installations are not dependents")
}
