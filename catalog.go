package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ModuleCatalog is the read-only lookup into the module catalog. The
// catalog's lifecycle (publishing, versioning) is owned by an external
// workflow; this subsystem only reads it.
type ModuleCatalog interface {
	// GetModule returns the catalog entry for the named module, or
	// ErrModuleNotFound.
	GetModule(ctx context.Context, moduleID string) (*ModuleDefinition, error)

	// ListModules returns all catalog entries, sorted by name.
	ListModules(ctx context.Context) ([]*ModuleDefinition, error)
}

// MemoryCatalog is an in-memory ModuleCatalog, useful for tests and for
// catalogs loaded from manifest files via LoadCatalogDir.
type MemoryCatalog struct {
	mu      sync.RWMutex
	modules map[string]*ModuleDefinition
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{modules: make(map[string]*ModuleDefinition)}
}

// AddModule adds or replaces a catalog entry.
func (c *MemoryCatalog) AddModule(def *ModuleDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules[def.Name] = def
	return nil
}

// GetModule implements ModuleCatalog.
func (c *MemoryCatalog) GetModule(_ context.Context, moduleID string) (*ModuleDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.modules[moduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	return def, nil
}

// ListModules implements ModuleCatalog.
func (c *MemoryCatalog) ListModules(_ context.Context) ([]*ModuleDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ModuleDefinition, 0, len(c.modules))
	for _, def := range c.modules {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadCatalogDir reads every module manifest file in dir into a
// MemoryCatalog. Files ending in .yaml or .yml are parsed as YAML, files
// ending in .toml as TOML; other files are ignored. Subdirectories are not
// descended into.
func LoadCatalogDir(dir string) (*MemoryCatalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog directory %s: %w", dir, err)
	}

	catalog := NewMemoryCatalog()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := loadManifestFile(path)
		if err != nil {
			return nil, err
		}
		if def == nil {
			continue
		}
		if err := catalog.AddModule(def); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	return catalog, nil
}

// loadManifestFile parses a single manifest file by extension. A nil
// definition with nil error means the file was skipped.
func loadManifestFile(path string) (*ModuleDefinition, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".toml":
	default:
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	def := &ModuleDefinition{}
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, def); err != nil {
			return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, def); err != nil {
			return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
		}
	}
	return def, nil
}
