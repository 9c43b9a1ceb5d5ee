package profile

import (
	"context"
	"sort"
	"sync"

	"github.com/antoniostano/baziview/internal/bazi"
)

// InMemoryStore keeps profiles in process for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]bazi.Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]bazi.Profile)}
}

func (s *InMemoryStore) Save(_ context.Context, p bazi.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = clone(p)
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, id string) (bazi.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return bazi.Profile{}, notFound(id)
	}
	return clone(p), nil
}

func (s *InMemoryStore) LoadAll(_ context.Context) ([]bazi.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bazi.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func clone(p bazi.Profile) bazi.Profile {
	if p.Chart != nil {
		c := *p.Chart
		p.Chart = &c
	}
	if p.Analysis != nil {
		a := *p.Analysis
		p.Analysis = &a
	}
	return p
}
