package clubauth

import (
	"context"
	"strings"
	"sync"
)

// MemoryPrincipalStore is a mutex-guarded in-memory [PrincipalStore] for
// development setups and tests. Production deployments implement
// [PrincipalStore] over the account database instead.
type MemoryPrincipalStore struct {
	mu      sync.RWMutex
	byID    map[string]*Principal
	byEmail map[string]string
}

// NewMemoryPrincipalStore returns an empty store.
func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		byID:    make(map[string]*Principal),
		byEmail: make(map[string]string),
	}
}

// Put inserts or replaces a principal.
func (s *MemoryPrincipalStore) Put(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(p)
	s.byID[cp.ID] = cp
	s.byEmail[normalizeEmail(cp.Email)] = cp.ID
}

// GetByID implements [PrincipalStore].
func (s *MemoryPrincipalStore) GetByID(_ context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return clone(p), nil
}

// GetByEmail implements [PrincipalStore]. Lookup is case-insensitive.
func (s *MemoryPrincipalStore) GetByEmail(_ context.Context, email string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return clone(s.byID[id]), nil
}

// Update implements [PrincipalStore].
func (s *MemoryPrincipalStore) Update(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; !ok {
		return ErrPrincipalNotFound
	}
	s.byID[p.ID] = clone(p)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clone(p *Principal) *Principal {
	cp := *p
	cp.Groups = make([]Group, len(p.Groups))
	for i, g := range p.Groups {
		cp.Groups[i] = Group{
			Name:        g.Name,
			Permissions: append([]Permission(nil), g.Permissions...),
		}
	}
	return &cp
}
