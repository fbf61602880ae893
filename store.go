package installer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InstallationFilter selects installations from a store. Zero-value fields
// match everything; Limit of zero means no limit.
type InstallationFilter struct {
	TenantID string
	ModuleID string
	Statuses []InstallationStatus
	Limit    int
	Offset   int
}

func (f InstallationFilter) matches(inst *Installation) bool {
	if f.TenantID != "" && inst.TenantID != f.TenantID {
		return false
	}
	if f.ModuleID != "" && inst.ModuleID != f.ModuleID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if inst.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// InstallationStore is the persistence contract for Installation records.
//
// Create must enforce the at-most-one-active invariant: it fails with
// ErrInstallationExists when another installation for the same
// (module, tenant) pair is in an active status. Enforcing this inside the
// store, under whatever locking or constraint the backend provides, is what
// makes concurrent installs of the same pair safe; callers may pre-check
// for a friendlier error but must not rely on the pre-check for
// correctness.
type InstallationStore interface {
	// Create persists a new installation record.
	Create(ctx context.Context, inst *Installation) error

	// Update replaces the stored record identified by inst.ID.
	Update(ctx context.Context, inst *Installation) error

	// Get returns the installation with the given id, or
	// ErrInstallationNotFound.
	Get(ctx context.Context, id string) (*Installation, error)

	// List returns installations matching the filter, ordered by creation
	// time.
	List(ctx context.Context, filter InstallationFilter) ([]*Installation, error)
}

// MemoryStore is an in-memory InstallationStore. It is safe for concurrent
// use and hands out deep copies, so callers mutate records only through
// Update. It is the reference implementation of the store contract and is
// used throughout the test suite.
type MemoryStore struct {
	mu            sync.RWMutex
	installations map[string]*Installation
}

// NewMemoryStore creates an empty in-memory installation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{installations: make(map[string]*Installation)}
}

// Create implements InstallationStore. The active-uniqueness check and the
// insert happen under the same lock, so two concurrent installs for one
// (module, tenant) pair cannot both succeed.
func (s *MemoryStore) Create(_ context.Context, inst *Installation) error {
	if inst == nil {
		return ErrInstallationNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.installations {
		if existing.ModuleID == inst.ModuleID && existing.TenantID == inst.TenantID && existing.Status.Active() {
			return fmt.Errorf("%w: module %s, tenant %s", ErrInstallationExists, inst.ModuleID, inst.TenantID)
		}
	}

	now := time.Now()
	stored := inst.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.installations[stored.ID] = stored
	inst.CreatedAt = stored.CreatedAt
	inst.UpdatedAt = stored.UpdatedAt
	return nil
}

// Update implements InstallationStore.
func (s *MemoryStore) Update(_ context.Context, inst *Installation) error {
	if inst == nil {
		return ErrInstallationNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.installations[inst.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrInstallationNotFound, inst.ID)
	}
	stored := inst.Clone()
	stored.UpdatedAt = time.Now()
	s.installations[inst.ID] = stored
	inst.UpdatedAt = stored.UpdatedAt
	return nil
}

// Get implements InstallationStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.installations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstallationNotFound, id)
	}
	return inst.Clone(), nil
}

// List implements InstallationStore.
func (s *MemoryStore) List(_ context.Context, filter InstallationFilter) ([]*Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Installation
	for _, inst := range s.installations {
		if filter.matches(inst) {
			out = append(out, inst.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
