package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ConfigWatcher watches a directory of per-installation configuration
// files and applies changes through the orchestrator with hot reload.
//
// Each file is named <installation-id>.yaml (or .yml) and contains the
// installation's configuration document. On a write or create event the
// file is parsed and handed to Orchestrator.UpdateConfiguration with
// hotReload enabled; validation failures and deferred hot-applies follow
// the orchestrator's contracts and never stop the watcher.
type ConfigWatcher struct {
	dir          string
	orchestrator *Orchestrator
	logger       Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewConfigWatcher creates a watcher over the given directory. The watcher
// does not start until Start is called.
func NewConfigWatcher(dir string, orchestrator *Orchestrator, logger Logger) *ConfigWatcher {
	return &ConfigWatcher{dir: dir, orchestrator: orchestrator, logger: logger}
}

// Start begins watching the configuration directory. The watch loop runs
// until Stop is called or the context is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching config directory %s: %w", w.dir, err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	go w.run(ctx, watcher, w.done)

	w.logger.Info("Configuration watcher started", "dir", w.dir)
	return nil
}

// Stop stops watching. It is safe to call multiple times.
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	w.watcher = nil
	w.done = nil
	return err
}

func (w *ConfigWatcher) run(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Configuration watcher error", "error", err)
		}
	}
}

// handleChange applies one changed configuration file. Failures are logged
// and swallowed; a bad file must not take the watcher down.
func (w *ConfigWatcher) handleChange(ctx context.Context, path string) {
	installationID, ok := installationIDFromPath(path)
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("Failed to read changed config file", "path", path, "error", err)
		return
	}
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		w.logger.Warn("Failed to parse changed config file", "path", path, "error", err)
		return
	}

	if _, err := w.orchestrator.UpdateConfiguration(ctx, installationID, config, true); err != nil {
		w.logger.Warn("Failed to apply changed configuration",
			"installation", installationID, "path", path, "error", err)
		return
	}
	w.logger.Info("Configuration updated from file", "installation", installationID, "path", path)
}

// installationIDFromPath extracts the installation id from a watched file
// name, accepting only .yaml and .yml files.
func installationIDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}
	return strings.TrimSuffix(base, filepath.Ext(base)), true
}
