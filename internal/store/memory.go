package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/model"
)

// MemoryStore is a mutex-protected in-process Store, used by default and by
// tests. It makes no durability promise across restarts.
type MemoryStore struct {
	mu           sync.Mutex
	observations map[string]model.Observation
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{observations: map[string]model.Observation{}}
}

// CreateBatch persists N observations, assigning IDs.
func (s *MemoryStore) CreateBatch(ctx context.Context, observations []model.Observation) ([]model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Observation, 0, len(observations))
	for _, o := range observations {
		out = append(out, s.createLocked(o))
	}
	return out, nil
}

// Create persists a single observation, assigning an ID.
func (s *MemoryStore) Create(ctx context.Context, observation model.Observation) (model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(observation), nil
}

func (s *MemoryStore) createLocked(o model.Observation) model.Observation {
	o.ID = uuid.NewString()
	if o.Status == "" {
		o.Status = model.StatusOpen
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	s.observations[o.ID] = o
	return o
}

// List returns observations matching opts.Filters, most-recent first.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.Observation
	for _, o := range s.observations {
		if opts.Filters.Status != "" && o.Status != opts.Filters.Status {
			continue
		}
		if opts.Filters.Severity != "" && o.Severity != opts.Filters.Severity {
			continue
		}
		if opts.Filters.Observer != "" && o.Observer != opts.Filters.Observer {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return ListResult{Observations: matched, Count: len(matched), Total: total}, nil
}

// Get returns one observation by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.observations[id]
	if !ok {
		return model.Observation{}, fmt.Errorf("observation %q not found", id)
	}
	return o, nil
}

// Acknowledge transitions an observation to Acknowledged.
func (s *MemoryStore) Acknowledge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.observations[id]
	if !ok {
		return fmt.Errorf("observation %q not found", id)
	}
	o.Acknowledge(time.Now())
	s.observations[id] = o
	return nil
}

// Resolve transitions an observation to Resolved with a resolution note.
func (s *MemoryStore) Resolve(ctx context.Context, id, resolutionNote string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.observations[id]
	if !ok {
		return fmt.Errorf("observation %q not found", id)
	}
	o.Resolve(time.Now(), resolutionNote)
	s.observations[id] = o
	return nil
}

// ClearResolved deletes every resolved observation and returns the count
// removed.
func (s *MemoryStore) ClearResolved(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, o := range s.observations {
		if o.Status == model.StatusResolved {
			delete(s.observations, id)
			n++
		}
	}
	return n, nil
}
