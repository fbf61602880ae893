package installer

import (
	"context"
	"net/http"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-chi/chi/v5"
)

// testLogger discards all output.
type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Debug(msg string, args ...any) {}

// stubRuntime is a controllable ModuleRuntime used across the test suite.
// It implements Reconfigurable; tests that need a runtime without hot
// reconfiguration use bareRuntime instead.
type stubRuntime struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
	stopErr  error
	applyErr error
	health   HealthState
	applied  map[string]any
}

func newStubRuntime() *stubRuntime {
	return &stubRuntime{health: HealthHealthy}
}

func (r *stubRuntime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	return nil
}

func (r *stubRuntime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return r.stopErr
}

func (r *stubRuntime) HealthCheck(ctx context.Context) HealthReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return HealthReport{Status: r.health}
}

func (r *stubRuntime) ApplyConfig(ctx context.Context, config map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return r.applyErr
	}
	r.applied = config
	return nil
}

func (r *stubRuntime) appliedConfig() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// bareRuntime supports only the mandatory runtime hooks.
type bareRuntime struct{}

func (bareRuntime) Start(ctx context.Context) error { return nil }
func (bareRuntime) Stop(ctx context.Context) error  { return nil }
func (bareRuntime) HealthCheck(ctx context.Context) HealthReport {
	return HealthReport{Status: HealthHealthy}
}

// routedRuntime additionally exposes HTTP routes.
type routedRuntime struct {
	*stubRuntime
}

func (r routedRuntime) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	return router
}

// stubFactory builds stubRuntimes and remembers them keyed by module and
// tenant so tests can inspect runtime state after orchestration.
type stubFactory struct {
	mu       sync.Mutex
	loadErr  error
	startErr error
	bare     bool
	routed   bool
	runtimes map[string]*stubRuntime
}

func newStubFactory() *stubFactory {
	return &stubFactory{runtimes: make(map[string]*stubRuntime)}
}

func (f *stubFactory) NewRuntime(ctx context.Context, module *ModuleDefinition, inst *Installation) (ModuleRuntime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.bare {
		return bareRuntime{}, nil
	}
	rt := newStubRuntime()
	rt.startErr = f.startErr
	f.runtimes[loadKey(module.Name, inst.TenantID)] = rt
	if f.routed {
		return routedRuntime{rt}, nil
	}
	return rt, nil
}

func (f *stubFactory) runtime(moduleID, tenantID string) *stubRuntime {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runtimes[loadKey(moduleID, tenantID)]
}

// eventRecorder captures published CloudEvents for assertions.
type eventRecorder struct {
	id     string
	mu     sync.Mutex
	events []cloudevents.Event
}

func newEventRecorder(id string) *eventRecorder {
	return &eventRecorder{id: id}
}

func (r *eventRecorder) OnEvent(ctx context.Context, event cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ObserverID() string {
	if r.id == "" {
		return "event-recorder"
	}
	return r.id
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type())
	}
	return out
}

func (r *eventRecorder) lastOfType(eventType string) (cloudevents.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type() == eventType {
			return r.events[i], true
		}
	}
	return cloudevents.Event{}, false
}

// testHarness wires a complete orchestrator over in-memory collaborators.
type testHarness struct {
	catalog   *MemoryCatalog
	store     *MemoryStore
	factory   *stubFactory
	loader    *Loader
	endpoints *EndpointManager
	subject   *ObserverRegistry
	events    *eventRecorder
	orch      *Orchestrator
}

func newTestHarness() *testHarness {
	logger := testLogger{}
	h := &testHarness{
		catalog: NewMemoryCatalog(),
		store:   NewMemoryStore(),
		factory: newStubFactory(),
		subject: NewObserverRegistry(logger),
		events:  &eventRecorder{},
	}
	h.loader = NewLoader(h.factory, logger)
	h.endpoints = NewEndpointManager(logger)
	_ = h.subject.RegisterObserver(h.events)
	h.orch = NewOrchestrator(OrchestratorOptions{
		Catalog:   h.catalog,
		Store:     h.store,
		Loader:    h.loader,
		Endpoints: h.endpoints,
		Logger:    logger,
		Subject:   h.subject,
	})
	return h
}

// addModule registers a published module with the given required
// dependencies in the harness catalog.
func (h *testHarness) addModule(name string, deps ...string) *ModuleDefinition {
	def := &ModuleDefinition{
		Name:    name,
		Version: "1.0.0",
		Status:  ModuleStatusPublished,
	}
	for _, dep := range deps {
		def.Manifest.Dependencies = append(def.Manifest.Dependencies, ModuleDependency{Name: dep})
	}
	if err := h.catalog.AddModule(def); err != nil {
		panic(err)
	}
	return def
}
