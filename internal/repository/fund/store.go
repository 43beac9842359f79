package fund

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Store keeps fund profiles with optimistic version control. A conflicting
// concurrent edit is rejected at save time, never blocked.
type Store struct {
	mu    sync.RWMutex
	funds map[string]domain.FundProfile
}

// New creates an empty fund store.
func New() *Store {
	return &Store{funds: make(map[string]domain.FundProfile)}
}

// Get returns a copy of the fund.
func (s *Store) Get(_ context.Context, id string) (domain.FundProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.funds[id]
	if !ok {
		return domain.FundProfile{}, fmt.Errorf("fund %s: %w", id, domain.ErrNotFound)
	}
	return f.Clone(), nil
}

// Save stores f if f.Version equals the stored version (0 for new funds) and
// returns the saved fund with its version incremented, plus the previous value.
func (s *Store) Save(_ context.Context, f domain.FundProfile) (domain.FundProfile, *domain.FundProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.funds[f.ID]
	current := 0
	if exists {
		current = old.Version
		if old.TenantID != f.TenantID {
			// fund IDs are global; a foreign tenant must not learn the fund exists
			return domain.FundProfile{}, nil, fmt.Errorf("fund %s: %w", f.ID, domain.ErrNotFound)
		}
	}
	if f.Version != current {
		return domain.FundProfile{}, nil, domain.NewConflict(current)
	}

	saved := f.Clone()
	saved.Version = current + 1
	s.funds[f.ID] = saved

	if !exists {
		return saved.Clone(), nil, nil
	}
	prev := old.Clone()
	return saved.Clone(), &prev, nil
}

// ListActive returns all active funds ordered by ID.
func (s *Store) ListActive(_ context.Context) []domain.FundProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FundProfile, 0, len(s.funds))
	for _, f := range s.funds {
		if f.Status == domain.FundActive {
			out = append(out, f.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByTenant returns the tenant's funds ordered by ID.
func (s *Store) ListByTenant(_ context.Context, tenant string) []domain.FundProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FundProfile, 0)
	for _, f := range s.funds {
		if f.TenantID == tenant {
			out = append(out, f.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
